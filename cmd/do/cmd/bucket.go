package cmd

import (
	"fmt"

	"github.com/robolist/robolist/internal/storage"

	"github.com/spf13/cobra"
)

func BucketCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bucket",
		Short: "Manage the artifact bucket",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "create",
		Short: "Create the bucket if missing and apply its CORS rules",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, flush := loadConfig()
			defer flush()

			if !cfg.HasS3() {
				return fmt.Errorf("no S3 endpoint or credentials configured")
			}
			s3, err := storage.NewS3Storage(cmd.Context(), storage.S3Config{
				Region:    cfg.AWSRegion,
				Bucket:    cfg.S3Bucket,
				Prefix:    cfg.S3Prefix,
				AccessKey: cfg.AWSAccessKeyID,
				SecretKey: cfg.AWSSecretAccessKey,
				Endpoint:  cfg.S3Endpoint,
			})
			if err != nil {
				return err
			}
			err = s3.EnsureBucket(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Printf("bucket %s ready\n", cfg.S3Bucket)
			return nil
		},
	})

	return cmd
}
