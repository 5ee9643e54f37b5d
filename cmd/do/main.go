package main

import (
	"os"

	"github.com/robolist/robolist/cmd/do/cmd"

	"github.com/spf13/cobra"
)

func main() {
	rootCmd := &cobra.Command{
		Use:          "do",
		Short:        "Operations tools for robolist",
		SilenceUsage: true,
	}

	rootCmd.AddCommand(cmd.TableCmd())
	rootCmd.AddCommand(cmd.BucketCmd())
	rootCmd.AddCommand(cmd.UserCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
