package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestImageOutcome_String(t *testing.T) {
	tests := []struct {
		outcome ImageOutcome
		want    string
	}{
		{OutcomeUnset, "unset"},
		{OutcomeDownloaded, "downloaded"},
		{OutcomeReusedSlot, "reused_slot"},
		{OutcomeReusedContent, "reused_content"},
		{OutcomeFailed, "failed"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.outcome.String())
	}
}

func TestImageOutcome_IsValid(t *testing.T) {
	tests := []struct {
		outcome ImageOutcome
		want    bool
	}{
		{OutcomeDownloaded, true},
		{OutcomeReusedSlot, true},
		{OutcomeReusedContent, true},
		{OutcomeFailed, true},
		{OutcomeUnset, false},
		{ImageOutcome("arbitrary"), false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.outcome.IsValid(), "ImageOutcome(%q).IsValid()", string(tt.outcome))
	}
}

func TestImageOutcome_IsReuse(t *testing.T) {
	assert.True(t, OutcomeReusedSlot.IsReuse())
	assert.True(t, OutcomeReusedContent.IsReuse())
	assert.False(t, OutcomeDownloaded.IsReuse())
	assert.False(t, OutcomeFailed.IsReuse())
}
