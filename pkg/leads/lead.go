// Package leads accepts contact-form submissions and forwards them to the
// records API, keeping a local copy when the API is unavailable.
package leads

import (
	"fmt"
	"strings"
	"time"

	"github.com/hanamal24/site-sync/pkg/utils"
)

// RequiredFields are the form fields a lead must carry, in reporting order
var RequiredFields = []string{"fullName", "email", "phone", "eventType", "guestCount", "eventDate"}

// Values written to every forwarded lead
const (
	StatusNew     = "חדש"
	SourceWebsite = "אתר אינטרנט"
)

// Lead is a decoded form submission. Values keep their JSON types so a
// numeric guestCount reaches the table as a number.
type Lead map[string]any

// MissingFields returns the required fields that are absent or empty
func (l Lead) MissingFields() []string {
	var missing []string
	for _, f := range RequiredFields {
		if isEmpty(l[f]) {
			missing = append(missing, f)
		}
	}
	return missing
}

// Validate returns an error wrapping utils.ErrLeadValidation when required fields are missing
func (l Lead) Validate() error {
	if missing := l.MissingFields(); len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", utils.ErrLeadValidation, strings.Join(missing, ", "))
	}
	return nil
}

// AirtableFields maps the lead onto the leads table columns
func (l Lead) AirtableFields(now time.Time) map[string]any {
	message := l["message"]
	if isEmpty(message) {
		message = ""
	}
	return map[string]any{
		"שם מלא":          l["fullName"],
		"אימייל":          l["email"],
		"טלפון":           l["phone"],
		"סוג אירוע":       l["eventType"],
		"מספר אורחים":     l["guestCount"],
		"תאריך האירוע":    l["eventDate"],
		"הודעה נוספת":     message,
		"תאריך יצירת הליד": now.Format(time.DateOnly),
		"סטטוס":           StatusNew,
		"מקור":            SourceWebsite,
	}
}

func isEmpty(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(t) == ""
	case float64:
		return t == 0
	case bool:
		return !t
	default:
		return false
	}
}
