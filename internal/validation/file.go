package validation

import (
	"fmt"
	"io"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/robolist/robolist/internal/model"
)

// UploadLimits bounds the size of a single uploaded artifact.
type UploadLimits struct {
	MinBytes int64
	MaxBytes int64
}

// Upload is a classified artifact upload.
type Upload struct {
	Type        model.ArtifactType
	ContentType string
	Detected    string
}

// ValidateUpload classifies a file, checks its size against limits and its
// declared content type against the artifact type. The first bytes are sniffed
// so images cannot be smuggled under a misleading name.
// The reader is left positioned at the start when it is an io.Seeker.
func ValidateUpload(file io.Reader, filename, contentType string, size int64, limits UploadLimits) (*Upload, error) {
	if size < limits.MinBytes {
		return nil, invalid(fmt.Sprintf("file %q is too small (min %d bytes)", filename, limits.MinBytes))
	}
	if limits.MaxBytes > 0 && size > limits.MaxBytes {
		return nil, invalid(fmt.Sprintf("file %q is too large (max %d bytes)", filename, limits.MaxBytes))
	}

	mtype, err := mimetype.DetectReader(file)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	if seeker, ok := file.(io.Seeker); ok {
		_, err = seeker.Seek(0, io.SeekStart)
		if err != nil {
			return nil, fmt.Errorf("failed to reset file pointer: %w", err)
		}
	}
	detected := mtype.String()
	if i := strings.IndexByte(detected, ';'); i >= 0 {
		detected = detected[:i]
	}

	if contentType == "" {
		contentType = detected
	}

	artifactType, err := model.ClassifyArtifact(contentType, filename)
	if err != nil {
		return nil, err
	}
	err = model.CheckContentType(contentType, artifactType)
	if err != nil {
		return nil, err
	}
	if artifactType.IsImage() && !strings.HasPrefix(detected, "image/") {
		return nil, invalid(fmt.Sprintf("file %q is not an image (detected: %s)", filename, detected))
	}

	return &Upload{Type: artifactType, ContentType: contentType, Detected: detected}, nil
}
