package validation

import (
	"bytes"
	"image"
	"image/png"
	"strings"
	"testing"

	"github.com/robolist/robolist/internal/apperr"
	"github.com/robolist/robolist/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateResourceName(t *testing.T) {
	for _, name := range []string{"r1", "test_class", "Arm-v2.1", strings.Repeat("a", 64)} {
		assert.NoError(t, ValidateResourceName(name), name)
	}
	for _, name := range []string{"", "_lead", "has space", "slash/name", strings.Repeat("a", 65)} {
		assert.ErrorIs(t, ValidateResourceName(name), apperr.ErrInvalidInput, name)
	}
}

func TestValidateDescriptionAndMetadata(t *testing.T) {
	assert.NoError(t, ValidateDescription(strings.Repeat("x", MaxDescriptionLength)))
	assert.ErrorIs(t, ValidateDescription(strings.Repeat("x", MaxDescriptionLength+1)), apperr.ErrInvalidInput)

	assert.NoError(t, ValidateMetadata(nil))
	assert.NoError(t, ValidateMetadata(map[string]string{"k": "v"}))
	big := map[string]string{"k": strings.Repeat("x", MaxMetadataBytes)}
	assert.ErrorIs(t, ValidateMetadata(big), apperr.ErrInvalidInput)
}

func TestValidateEmailAndPassword(t *testing.T) {
	assert.NoError(t, ValidateEmail("ben@example.com"))
	assert.ErrorIs(t, ValidateEmail(""), apperr.ErrInvalidInput)
	assert.ErrorIs(t, ValidateEmail("not-an-email"), apperr.ErrInvalidInput)

	assert.NoError(t, ValidatePassword("correct horse battery"))
	assert.ErrorIs(t, ValidatePassword("short"), apperr.ErrInvalidInput)
	assert.ErrorIs(t, ValidatePassword("mypassword1234"), apperr.ErrInvalidInput)
}

func TestValidateUsernameAndTag(t *testing.T) {
	assert.NoError(t, ValidateUsername("ben_k"))
	assert.ErrorIs(t, ValidateUsername("b"), apperr.ErrInvalidInput)
	assert.ErrorIs(t, ValidateUsername("ben k"), apperr.ErrInvalidInput)

	assert.NoError(t, ValidateTag("gripper"))
	assert.ErrorIs(t, ValidateTag(" "), apperr.ErrInvalidInput)
}

type signupRequest struct {
	Email string `json:"email" validate:"required,email"`
	Name  string `json:"name" validate:"required,resourcename"`
}

func TestStruct(t *testing.T) {
	assert.NoError(t, Struct(signupRequest{Email: "a@example.com", Name: "arm"}))

	err := Struct(signupRequest{Email: "bad", Name: ""})
	require.ErrorIs(t, err, apperr.ErrInvalidInput)
	assert.Contains(t, err.Error(), "invalid email address format")
	assert.Contains(t, err.Error(), "name is required")
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 4, 4))))
	return buf.Bytes()
}

func TestValidateUpload(t *testing.T) {
	limits := UploadLimits{MinBytes: 16, MaxBytes: 1 << 20}
	data := pngBytes(t)

	r := bytes.NewReader(data)
	up, err := ValidateUpload(r, "photo.png", "image/png", int64(len(data)), limits)
	require.NoError(t, err)
	assert.Equal(t, model.ArtifactImage, up.Type)
	assert.Equal(t, "image/png", up.Detected)
	assert.Equal(t, int64(len(data)), int64(r.Len()), "reader is rewound")

	up, err = ValidateUpload(bytes.NewReader(data), "photo.png", "", int64(len(data)), limits)
	require.NoError(t, err)
	assert.Equal(t, "image/png", up.ContentType)

	mesh := []byte("solid part\nendsolid part\n")
	up, err = ValidateUpload(bytes.NewReader(mesh), "part.stl", "application/octet-stream", int64(len(mesh)), limits)
	require.NoError(t, err)
	assert.Equal(t, model.ArtifactSTL, up.Type)
}

func TestValidateUpload_Rejects(t *testing.T) {
	limits := UploadLimits{MinBytes: 16, MaxBytes: 64}
	text := []byte("this is plainly not an image at all")

	_, err := ValidateUpload(bytes.NewReader(text), "fake.png", "image/png", int64(len(text)), limits)
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)

	_, err = ValidateUpload(bytes.NewReader([]byte("tiny")), "part.stl", "text/plain", 4, limits)
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)

	_, err = ValidateUpload(bytes.NewReader(text), "part.stl", "text/plain", 65, limits)
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)

	_, err = ValidateUpload(bytes.NewReader(text), "part.stl", "image/png", int64(len(text)), limits)
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)
}
