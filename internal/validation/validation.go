// Package validation checks handler input before any remote call is made.
package validation

import (
	"fmt"
	"regexp"
	"strings"
)

// MaxCampaignLength bounds the campaign segment of storage keys.
const MaxCampaignLength = 64

var campaignRegex = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.-]*$`)

// ValidationError reports one invalid input field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

type Validator struct {
	maxBatchSize int
}

// New creates a validator. A non-positive maxBatchSize disables the upper
// bound.
func New(maxBatchSize int) *Validator {
	return &Validator{maxBatchSize: maxBatchSize}
}

// ValidateCampaign checks that campaign can be used as a key segment.
func (v *Validator) ValidateCampaign(campaign string) error {
	if strings.TrimSpace(campaign) == "" {
		return &ValidationError{Field: "campaign", Message: "must not be empty"}
	}
	if len(campaign) > MaxCampaignLength {
		return &ValidationError{Field: "campaign", Message: fmt.Sprintf("exceeds %d characters", MaxCampaignLength)}
	}
	if !campaignRegex.MatchString(campaign) {
		return &ValidationError{Field: "campaign", Message: fmt.Sprintf("%q may only contain letters, digits, '.', '_' and '-'", campaign)}
	}
	return nil
}

// ValidateBatchSize checks 1 <= n <= max.
func (v *Validator) ValidateBatchSize(field string, n int) error {
	if n < 1 {
		return &ValidationError{Field: field, Message: fmt.Sprintf("must be at least 1, got %d", n)}
	}
	if v.maxBatchSize > 0 && n > v.maxBatchSize {
		return &ValidationError{Field: field, Message: fmt.Sprintf("must be at most %d, got %d", v.maxBatchSize, n)}
	}
	return nil
}

// IsValidCampaign reports whether campaign passes ValidateCampaign.
func (v *Validator) IsValidCampaign(campaign string) bool {
	return v.ValidateCampaign(campaign) == nil
}
