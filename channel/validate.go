package channel

func validateHash160(field string, h []byte) error {
	if len(h) != 20 {
		return &ValidationError{Field: field, Reason: "must be a 20-byte hash160"}
	}
	return nil
}

func validatePubKey(field string, pk []byte) error {
	if len(pk) != 33 && len(pk) != 65 {
		return &ValidationError{Field: field, Reason: "must be a 33 or 65-byte public key"}
	}
	return nil
}

func validatePositive(field string, n int64) error {
	if n <= 0 {
		return &ValidationError{Field: field, Reason: "must be positive"}
	}
	return nil
}

func validateNonNegative(field string, n int64) error {
	if n < 0 {
		return &ValidationError{Field: field, Reason: "must not be negative"}
	}
	return nil
}
