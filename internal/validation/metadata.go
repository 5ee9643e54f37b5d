package validation

import (
	"encoding/json"
	"fmt"
)

// MaxMetadataBytes caps the encoded size of robot class metadata.
const MaxMetadataBytes = 16 << 10

func ValidateMetadata(metadata any) error {
	if metadata == nil {
		return nil
	}
	data, err := json.Marshal(metadata)
	if err != nil {
		return invalid("metadata is not valid JSON")
	}
	if len(data) > MaxMetadataBytes {
		return invalid(fmt.Sprintf("metadata is too large (%d bytes, max %d)", len(data), MaxMetadataBytes))
	}
	return nil
}
