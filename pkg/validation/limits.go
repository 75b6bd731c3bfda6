package validation

import (
	"fmt"

	dErrors "credpass/pkg/domain-errors"
)

const (
	// MaxBodySize bounds JSON request bodies.
	MaxBodySize = 64 * 1024

	// MaxProofSize bounds proof documents uploaded to content storage.
	MaxProofSize = 10 * 1024 * 1024

	MaxProjectIDLength = 128
	MaxProofURILength  = 2048

	// MaxRecentRequests caps the recent requests listing.
	MaxRecentRequests = 100
)

// CheckStringLength validates that a string does not exceed the maximum length.
func CheckStringLength(fieldName, value string, max int) error {
	if len(value) > max {
		return dErrors.New(dErrors.CodeValidation, fmt.Sprintf("%s exceeds max length of %d", fieldName, max))
	}
	return nil
}

// CheckSize validates that a payload does not exceed max bytes.
func CheckSize(fieldName string, size, max int) error {
	if size > max {
		return dErrors.New(dErrors.CodeValidation, fmt.Sprintf("%s exceeds max size of %d bytes", fieldName, max))
	}
	return nil
}
