package validation

import (
	"errors"
	"strings"
	"testing"
)

func TestNew(t *testing.T) {
	v := New(50)
	if v == nil {
		t.Fatal("New() returned nil")
	}
	if v.maxBatchSize != 50 {
		t.Errorf("maxBatchSize = %d, want 50", v.maxBatchSize)
	}
}

func TestValidator_ValidateCampaign(t *testing.T) {
	tests := []struct {
		name     string
		campaign string
		wantErr  bool
		errMsg   string
	}{
		{name: "simple", campaign: "nature"},
		{name: "with separators", campaign: "city-life_2025.v1"},
		{name: "empty", campaign: "", wantErr: true, errMsg: "must not be empty"},
		{name: "blank", campaign: "   ", wantErr: true, errMsg: "must not be empty"},
		{name: "slash", campaign: "a/b", wantErr: true, errMsg: "may only contain"},
		{name: "leading dash", campaign: "-x", wantErr: true, errMsg: "may only contain"},
		{name: "space", campaign: "two words", wantErr: true, errMsg: "may only contain"},
		{name: "too long", campaign: strings.Repeat("a", MaxCampaignLength+1), wantErr: true, errMsg: "exceeds"},
		{name: "max length", campaign: strings.Repeat("a", MaxCampaignLength)},
	}

	v := New(50)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.ValidateCampaign(tt.campaign)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ValidateCampaign(%q) error = %v, wantErr %v", tt.campaign, err, tt.wantErr)
			}
			if !tt.wantErr {
				if !v.IsValidCampaign(tt.campaign) {
					t.Errorf("IsValidCampaign(%q) = false, want true", tt.campaign)
				}
				return
			}

			var vErr *ValidationError
			if !errors.As(err, &vErr) {
				t.Fatalf("error %T is not a *ValidationError", err)
			}
			if vErr.Field != "campaign" {
				t.Errorf("Field = %q, want campaign", vErr.Field)
			}
			if !strings.Contains(err.Error(), tt.errMsg) {
				t.Errorf("error = %q, want it to contain %q", err.Error(), tt.errMsg)
			}
		})
	}
}

func TestValidator_ValidateBatchSize(t *testing.T) {
	tests := []struct {
		name    string
		max     int
		n       int
		wantErr bool
	}{
		{name: "within bounds", max: 50, n: 5},
		{name: "at max", max: 50, n: 50},
		{name: "above max", max: 50, n: 51, wantErr: true},
		{name: "zero", max: 50, n: 0, wantErr: true},
		{name: "negative", max: 50, n: -1, wantErr: true},
		{name: "no upper bound", max: 0, n: 1000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := New(tt.max).ValidateBatchSize("batch_size_video", tt.n)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ValidateBatchSize(%d) error = %v, wantErr %v", tt.n, err, tt.wantErr)
			}
			if err != nil && !strings.HasPrefix(err.Error(), "invalid batch_size_video: ") {
				t.Errorf("error = %q, want field prefix", err.Error())
			}
		})
	}
}
