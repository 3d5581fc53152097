package rrule

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/teambition/rrule-go"
)

// ErrCountUnsupported is returned for rules using COUNT. Appointments move
// their start to each new occurrence, so a COUNT would restart every time.
var ErrCountUnsupported = errors.New("COUNT is not supported, use UNTIL")

// ParseRRule parses an RFC 5545 RRULE string anchored at dtstart.
// dtstart keeps its own location, so occurrences follow that zone's DST rules.
func ParseRRule(ruleStr string, dtstart time.Time) (*rrule.RRule, error) {
	ruleStr = strings.TrimPrefix(strings.TrimSpace(ruleStr), "RRULE:")

	opt, err := rrule.StrToROption(ruleStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse RRULE: %w", err)
	}
	opt.Dtstart = dtstart
	return rrule.NewRRule(*opt)
}

// Validate checks that ruleStr can drive an appointment.
func Validate(ruleStr string) error {
	if !IsRecurring(ruleStr) {
		return fmt.Errorf("failed to parse RRULE: missing FREQ")
	}
	if strings.Contains(strings.ToUpper(ruleStr), "COUNT=") {
		return ErrCountUnsupported
	}
	_, err := ParseRRule(ruleStr, time.Now())
	return err
}

// NextOccurrence returns the first occurrence strictly after the given time.
// Returns nil if the rule has no more occurrences.
func NextOccurrence(ruleStr string, dtstart time.Time, after time.Time) (*time.Time, error) {
	rule, err := ParseRRule(ruleStr, dtstart)
	if err != nil {
		return nil, err
	}

	next := rule.After(after, false)
	if next.IsZero() {
		return nil, nil
	}
	return &next, nil
}

// MinInterval returns the shortest gap between dtstart and the following
// occurrences, looking at the first 64. Zero means no later occurrence.
func MinInterval(ruleStr string, dtstart time.Time) (time.Duration, error) {
	rule, err := ParseRRule(ruleStr, dtstart)
	if err != nil {
		return 0, err
	}

	var shortest time.Duration
	prev := dtstart
	next := rule.Iterator()
	for i := 0; i < 64; i++ {
		t, ok := next()
		if !ok {
			break
		}
		if !t.After(prev) {
			continue
		}
		if gap := t.Sub(prev); shortest == 0 || gap < shortest {
			shortest = gap
		}
		prev = t
	}
	return shortest, nil
}

// IsRecurring checks if the RRULE string represents a recurring appointment
func IsRecurring(ruleStr string) bool {
	return ruleStr != "" && strings.Contains(strings.ToUpper(ruleStr), "FREQ=")
}

// HumanReadable returns a Spanish description of the RRULE
func HumanReadable(ruleStr string) string {
	ruleStr = strings.TrimPrefix(ruleStr, "RRULE:")

	info := make(map[string]string)
	for _, p := range strings.Split(ruleStr, ";") {
		kv := strings.SplitN(p, "=", 2)
		if len(kv) == 2 {
			info[strings.ToUpper(kv[0])] = strings.ToUpper(kv[1])
		}
	}

	var result strings.Builder

	freq := info["FREQ"]
	interval := info["INTERVAL"]
	if interval == "" || interval == "1" {
		switch freq {
		case "HOURLY":
			result.WriteString("cada hora")
		case "DAILY":
			result.WriteString("cada día")
		case "WEEKLY":
			result.WriteString("cada semana")
		case "MONTHLY":
			result.WriteString("cada mes")
		case "YEARLY":
			result.WriteString("cada año")
		}
	} else {
		switch freq {
		case "HOURLY":
			result.WriteString(fmt.Sprintf("cada %s horas", interval))
		case "DAILY":
			result.WriteString(fmt.Sprintf("cada %s días", interval))
		case "WEEKLY":
			result.WriteString(fmt.Sprintf("cada %s semanas", interval))
		case "MONTHLY":
			result.WriteString(fmt.Sprintf("cada %s meses", interval))
		case "YEARLY":
			result.WriteString(fmt.Sprintf("cada %s años", interval))
		}
	}

	if byDay := info["BYDAY"]; byDay != "" {
		dayMap := map[string]string{
			"MO": "lunes", "TU": "martes", "WE": "miércoles", "TH": "jueves",
			"FR": "viernes", "SA": "sábado", "SU": "domingo",
		}
		var days []string
		for _, d := range strings.Split(byDay, ",") {
			if name, ok := dayMap[d]; ok {
				days = append(days, name)
			}
		}
		if len(days) > 0 {
			result.WriteString(" (" + strings.Join(days, ", ") + ")")
		}
	}

	if until := info["UNTIL"]; until != "" {
		if t, err := time.Parse("20060102T150405Z", until); err == nil {
			result.WriteString(", hasta el " + t.Format("02/01/2006"))
		}
	}

	if result.Len() == 0 {
		return "una vez"
	}
	return result.String()
}
