package phone

import (
	"strings"

	"github.com/nyaruka/phonenumbers"
)

// Normalizer rewrites phone numbers to E.164 so the same client is recognised
// however the number was typed. Region is the ISO 3166 code assumed for numbers
// written without a country prefix.
type Normalizer struct {
	Region string
}

// Normalize returns the E.164 form of raw. Input that does not parse as a valid
// number is returned trimmed; client phones are free text.
func (n Normalizer) Normalize(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return raw
	}
	num, err := phonenumbers.Parse(raw, strings.ToUpper(n.Region))
	if err != nil || !phonenumbers.IsValidNumber(num) {
		return raw
	}
	return phonenumbers.Format(num, phonenumbers.E164)
}
