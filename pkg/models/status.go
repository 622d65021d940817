package models

// ImageOutcome describes how the pipeline resolved one image slot
type ImageOutcome string

const (
	OutcomeUnset         ImageOutcome = ""               // Zero value = unset/unknown
	OutcomeDownloaded    ImageOutcome = "downloaded"     // New content stored under a new file
	OutcomeReusedSlot    ImageOutcome = "reused_slot"    // Slot already resolved, no network call
	OutcomeReusedContent ImageOutcome = "reused_content" // Downloaded bytes matched an existing file
	OutcomeFailed        ImageOutcome = "failed"         // Download or write failed, remote URL kept
)

// String implements fmt.Stringer for logging
func (o ImageOutcome) String() string {
	if o == "" {
		return "unset"
	}
	return string(o)
}

// IsValid returns true if the outcome is a known value
func (o ImageOutcome) IsValid() bool {
	switch o {
	case OutcomeDownloaded, OutcomeReusedSlot, OutcomeReusedContent, OutcomeFailed:
		return true
	}
	return false
}

// IsReuse reports whether the outcome reused an existing file
func (o ImageOutcome) IsReuse() bool {
	return o == OutcomeReusedSlot || o == OutcomeReusedContent
}

// LeadStatus is the delivery state of a submitted lead
type LeadStatus string

const (
	LeadStatusForwarded LeadStatus = "forwarded" // Created in the records API
	LeadStatusStored    LeadStatus = "stored"    // Kept in the local fallback file
)

// String implements fmt.Stringer for logging
func (s LeadStatus) String() string {
	return string(s)
}
