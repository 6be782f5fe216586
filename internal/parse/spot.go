package parse

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var spotRe = regexp.MustCompile(`^([A-Z])\s*-?\s*(\d{1,2})$`)

// MaxSpotNumber is the highest spot number within a row.
const MaxSpotNumber = 10

// ParsedSpot holds the structured data parsed from a spot identifier.
type ParsedSpot struct {
	Row    string
	Number int
}

// ID returns the canonical "<Row><NN>" form.
func (p ParsedSpot) ID() string {
	return fmt.Sprintf("%s%02d", p.Row, p.Number)
}

// ParseSpotID extracts row and number from a spot identifier such as "A01".
// Lower case, a single-digit number ("a1") and a dash ("A-01") are accepted
// and normalised.
func ParseSpotID(raw string) (ParsedSpot, error) {
	s := strings.ToUpper(strings.TrimSpace(raw))
	m := spotRe.FindStringSubmatch(s)
	if m == nil {
		return ParsedSpot{}, fmt.Errorf("invalid spot id: %q", raw)
	}

	n, err := strconv.Atoi(m[2])
	if err != nil || n < 1 || n > MaxSpotNumber {
		return ParsedSpot{}, fmt.Errorf("spot number out of range in %q", raw)
	}

	return ParsedSpot{Row: m[1], Number: n}, nil
}
