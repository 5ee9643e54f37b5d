package model

import (
	"fmt"
	"path"
	"slices"
	"strings"

	"github.com/robolist/robolist/internal/apperr"
)

type ArtifactType string

const (
	ArtifactImage  ArtifactType = "image"
	ArtifactKernel ArtifactType = "kernel"
	ArtifactURDF   ArtifactType = "urdf"
	ArtifactMJCF   ArtifactType = "mjcf"
	ArtifactSTL    ArtifactType = "stl"
	ArtifactOBJ    ArtifactType = "obj"
	ArtifactDAE    ArtifactType = "dae"
	ArtifactPLY    ArtifactType = "ply"
	ArtifactTGZ    ArtifactType = "tgz"
	ArtifactZIP    ArtifactType = "zip"
)

// ArtifactTypes lists every artifact type.
var ArtifactTypes = []ArtifactType{
	ArtifactImage,
	ArtifactKernel,
	ArtifactURDF,
	ArtifactMJCF,
	ArtifactSTL,
	ArtifactOBJ,
	ArtifactDAE,
	ArtifactPLY,
	ArtifactTGZ,
	ArtifactZIP,
}

func (t ArtifactType) Valid() bool {
	return slices.Contains(ArtifactTypes, t)
}

func (t ArtifactType) IsImage() bool {
	return t == ArtifactImage
}

func (t ArtifactType) IsCompressed() bool {
	return t == ArtifactTGZ || t == ArtifactZIP
}

type ArtifactSize string

const (
	SizeSmall ArtifactSize = "small"
	SizeLarge ArtifactSize = "large"
)

// Dimensions is a height and width in pixels.
type Dimensions struct {
	Height int
	Width  int
}

// ImageSizes are the variants stored for every image artifact.
var ImageSizes = map[ArtifactSize]Dimensions{
	SizeLarge: {Height: 1536, Width: 1536},
	SizeSmall: {Height: 256, Width: 256},
}

// ArtifactSizes lists the image variants in a stable order.
var ArtifactSizes = []ArtifactSize{SizeSmall, SizeLarge}

// uploadContentTypes are the content types accepted per artifact type, in the
// order they are tried when the extension is unknown.
var uploadContentTypes = []struct {
	Type         ArtifactType
	ContentTypes []string
}{
	{ArtifactImage, []string{"image/png", "image/jpeg", "image/jpg", "image/gif", "image/webp"}},
	{ArtifactURDF, []string{"application/octet-stream", "text/xml", "application/xml"}},
	{ArtifactMJCF, []string{"application/octet-stream", "text/xml", "application/xml"}},
	{ArtifactSTL, []string{"application/octet-stream", "text/plain"}},
	{ArtifactOBJ, []string{"application/octet-stream", "text/plain"}},
	{ArtifactDAE, []string{"application/octet-stream", "text/plain"}},
	{ArtifactPLY, []string{"application/octet-stream", "text/plain"}},
	{ArtifactTGZ, []string{"application/gzip", "application/x-gzip", "application/x-tar", "application/x-compressed-tar"}},
	{ArtifactZIP, []string{"application/zip"}},
	{ArtifactKernel, []string{"application/octet-stream", "application/x-raw-disk-image"}},
}

// UploadContentTypes returns the content types accepted for an artifact type.
func UploadContentTypes(t ArtifactType) []string {
	for _, u := range uploadContentTypes {
		if u.Type == t {
			return u.ContentTypes
		}
	}
	return nil
}

// DownloadContentType is the content type served for stored artifacts.
// Images are always stored as PNG.
func DownloadContentType(t ArtifactType) string {
	switch t {
	case ArtifactImage:
		return "image/png"
	case ArtifactTGZ:
		return "application/gzip"
	case ArtifactZIP:
		return "application/zip"
	default:
		return "application/octet-stream"
	}
}

var extensionTypes = map[string]ArtifactType{
	"img":  ArtifactKernel,
	"png":  ArtifactImage,
	"jpeg": ArtifactImage,
	"jpg":  ArtifactImage,
	"gif":  ArtifactImage,
	"webp": ArtifactImage,
	"urdf": ArtifactURDF,
	"mjcf": ArtifactMJCF,
	"xml":  ArtifactMJCF,
	"stl":  ArtifactSTL,
	"obj":  ArtifactOBJ,
	"dae":  ArtifactDAE,
	"ply":  ArtifactPLY,
	"tgz":  ArtifactTGZ,
	"zip":  ArtifactZIP,
}

// ClassifyArtifact picks the artifact type from the filename extension, then
// from the content type. Kernels are only recognized by extension since their
// content type is shared with meshes and robot descriptions.
func ClassifyArtifact(contentType, filename string) (ArtifactType, error) {
	name := strings.ToLower(filename)
	if strings.HasSuffix(name, ".tar.gz") {
		return ArtifactTGZ, nil
	}
	if ext := strings.TrimPrefix(path.Ext(name), "."); ext != "" {
		if t, ok := extensionTypes[ext]; ok {
			return t, nil
		}
	}

	if contentType != "" {
		for _, u := range uploadContentTypes {
			if u.Type == ArtifactKernel {
				continue
			}
			if slices.Contains(u.ContentTypes, contentType) {
				return u.Type, nil
			}
		}
	}
	return "", fmt.Errorf("unknown content type for file %q: %w", filename, apperr.ErrInvalidInput)
}

// CompressionType classifies an upload that must be an archive.
func CompressionType(contentType, filename string) (ArtifactType, error) {
	if filename == "" {
		return "", fmt.Errorf("filename must be provided: %w", apperr.ErrInvalidInput)
	}
	t, err := ClassifyArtifact(contentType, filename)
	if err != nil {
		return "", err
	}
	if !t.IsCompressed() {
		return "", fmt.Errorf("artifact type %s is not compressed; expected tgz or zip: %w", t, apperr.ErrInvalidInput)
	}
	return t, nil
}

// CheckContentType verifies the content type is accepted for the artifact type.
func CheckContentType(contentType string, t ArtifactType) error {
	if contentType == "" {
		return fmt.Errorf("artifact content type was not provided: %w", apperr.ErrInvalidInput)
	}
	allowed := UploadContentTypes(t)
	if !slices.Contains(allowed, contentType) {
		return fmt.Errorf("invalid content type for artifact; %s not in [%s]: %w",
			contentType, strings.Join(allowed, ", "), apperr.ErrInvalidInput)
	}
	return nil
}

// Artifact is a file attached to a listing. The blob lives in object storage
// under the key returned by Key; images are stored once per size.
type Artifact struct {
	ID           string         `json:"id" dynamodbav:"id"`
	UserID       string         `json:"user_id" dynamodbav:"user_id"`
	ListingID    string         `json:"listing_id" dynamodbav:"listing_id"`
	Name         string         `json:"name" dynamodbav:"name"`
	ArtifactType ArtifactType   `json:"artifact_type" dynamodbav:"artifact_type"`
	Sizes        []ArtifactSize `json:"sizes,omitempty" dynamodbav:"sizes,omitempty"`
	Description  string         `json:"description,omitempty" dynamodbav:"description,omitempty"`
	Timestamp    int64          `json:"timestamp" dynamodbav:"timestamp"`
	Children     []string       `json:"children,omitempty" dynamodbav:"children,omitempty"`
	IsMain       bool           `json:"is_main" dynamodbav:"is_main"`
}

func (a *Artifact) CanWrite(u *User) bool {
	return u.IsAdmin() || u.ID == a.UserID
}

// Key returns the object key of the artifact blob. size is ignored for
// everything but images.
func (a *Artifact) Key(size ArtifactSize) (string, error) {
	return ArtifactKey(a.ListingID, a.ID, a.Name, a.ArtifactType, size)
}

// Keys returns every object key the artifact owns.
func (a *Artifact) Keys() ([]string, error) {
	if !a.ArtifactType.IsImage() {
		k, err := a.Key(SizeLarge)
		if err != nil {
			return nil, err
		}
		return []string{k}, nil
	}
	sizes := a.Sizes
	if len(sizes) == 0 {
		sizes = ArtifactSizes
	}
	keys := make([]string, 0, len(sizes))
	for _, size := range sizes {
		k, err := a.Key(size)
		if err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, nil
}

// ArtifactKey lays out artifact blobs as {listing}/{artifact}/{name}, with a
// {size}_{H}x{W}_ prefix on the name for images.
func ArtifactKey(listingID, artifactID, name string, t ArtifactType, size ArtifactSize) (string, error) {
	if listingID == "" || artifactID == "" || name == "" || t == "" {
		return "", fmt.Errorf("artifact key needs listing_id, artifact id, name and type: %w", apperr.ErrInternal)
	}

	switch t {
	case ArtifactImage:
		dims, ok := ImageSizes[size]
		if !ok {
			return "", fmt.Errorf("unknown artifact size %q: %w", size, apperr.ErrInvalidInput)
		}
		return fmt.Sprintf("%s/%s/%s_%dx%d_%s", listingID, artifactID, size, dims.Height, dims.Width, name), nil
	case ArtifactKernel, ArtifactURDF, ArtifactMJCF, ArtifactSTL, ArtifactOBJ, ArtifactDAE, ArtifactPLY, ArtifactTGZ, ArtifactZIP:
		return fmt.Sprintf("%s/%s/%s", listingID, artifactID, name), nil
	default:
		return "", fmt.Errorf("unknown artifact type %q: %w", t, apperr.ErrInvalidInput)
	}
}
