package models

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// MaxRoundDelayMinutes caps any configured pause between rounds at one year.
const MaxRoundDelayMinutes = 366 * 24 * 60

var (
	errFractionalMinutes = errors.New("minutes must be a whole number")
	errMinutesOutOfRange = fmt.Errorf("minutes must be within %d", MaxRoundDelayMinutes)
)

// Rules holds the typed subset of a tournament's free-form rules column.
type Rules struct {
	RoundDelayMinutes *int `json:"round_delay_minutes,omitempty"`
}

type rawRules struct {
	RoundDelayMinutes json.RawMessage `json:"round_delay_minutes"`
}

// ParseRules decodes the rules column. Older rows store the rules object
// serialized a second time as a JSON string; both shapes are accepted.
func ParseRules(raw string) (*Rules, error) {
	data := bytes.TrimSpace([]byte(raw))
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return &Rules{}, nil
	}

	if data[0] == '"' {
		var inner string
		if err := json.Unmarshal(data, &inner); err != nil {
			return nil, fmt.Errorf("failed to decode serialized rules: %w", err)
		}
		return ParseRules(inner)
	}

	var r rawRules
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("failed to decode rules: %w", err)
	}

	rules := &Rules{}
	if minutes, ok, err := parseMinutes(r.RoundDelayMinutes); err != nil {
		return nil, fmt.Errorf("invalid round_delay_minutes: %w", err)
	} else if ok {
		rules.RoundDelayMinutes = &minutes
	}
	return rules, nil
}

// parseMinutes accepts a JSON number or a numeric string holding a whole
// number of minutes no larger than MaxRoundDelayMinutes in magnitude.
func parseMinutes(raw json.RawMessage) (int, bool, error) {
	value := bytes.TrimSpace(raw)
	if len(value) == 0 || bytes.Equal(value, []byte("null")) {
		return 0, false, nil
	}

	if value[0] == '"' {
		var s string
		if err := json.Unmarshal(value, &s); err != nil {
			return 0, false, err
		}
		s = strings.TrimSpace(s)
		if s == "" {
			return 0, false, nil
		}
		value = []byte(s)
	}

	f, err := strconv.ParseFloat(string(value), 64)
	if err != nil {
		return 0, false, err
	}
	if math.IsNaN(f) || math.Abs(f) > MaxRoundDelayMinutes {
		return 0, false, errMinutesOutOfRange
	}
	if f != math.Trunc(f) {
		return 0, false, errFractionalMinutes
	}
	return int(f), true, nil
}

// Rules parses the tournament's rules column. A nil column yields empty rules.
func (t *Tournament) Rules() (*Rules, error) {
	if t.RulesJSON == nil {
		return &Rules{}, nil
	}
	return ParseRules(*t.RulesJSON)
}
