package validation

import (
	"strings"
	"unicode/utf8"
)

const (
	MaxListingNameLength = 128
	MaxDescriptionLength = 2048
	MaxTagLength         = 64
)

// ValidateResourceName validates robot and robot class names.
func ValidateResourceName(name string) error {
	if name == "" {
		return invalid("name is required")
	}
	if !resourceNamePattern.MatchString(name) {
		return invalid("name must start with a letter or digit and contain only letters, digits, '_', '.' or '-' (max 64)")
	}
	return nil
}

// ValidateListingName validates a listing display name
func ValidateListingName(name string) error {
	trimmed := strings.TrimSpace(name)

	if trimmed == "" {
		return invalid("name is required")
	}

	if utf8.RuneCountInString(trimmed) > MaxListingNameLength {
		return invalid("name is too long (max 128 characters)")
	}

	return nil
}

func ValidateDescription(description string) error {
	if utf8.RuneCountInString(description) > MaxDescriptionLength {
		return invalid("description is too long (max 2048 characters)")
	}
	return nil
}

func ValidateUsername(username string) error {
	if !usernamePattern.MatchString(username) {
		return invalid("username must be 3 to 64 letters, digits, '_' or '-'")
	}
	return nil
}

func ValidateTag(tag string) error {
	if strings.TrimSpace(tag) == "" {
		return invalid("tag is required")
	}
	if utf8.RuneCountInString(tag) > MaxTagLength {
		return invalid("tag is too long (max 64 characters)")
	}
	return nil
}
