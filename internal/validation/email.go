package validation

// ValidateEmail validates email format and length
func ValidateEmail(email string) error {
	// RFC 5321: local part max 64, domain max 255, total max 254 with @
	if len(email) > 254 {
		return invalid("email address is too long (max 254 characters)")
	}

	if email == "" {
		return invalid("email address is required")
	}

	if validate.Var(email, "email") != nil {
		return invalid("invalid email address format")
	}

	return nil
}
