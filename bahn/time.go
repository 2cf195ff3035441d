package bahn

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ParseClock converts a "H:MM" clock string into total minutes.
func ParseClock(s string) (int, error) {
	h, m, err := splitClock(s)
	if err != nil {
		return 0, err
	}
	return h*60 + m, nil
}

// ParseClockHours converts a "H:MM" clock string into fractional hours,
// rounded to three decimals.
func ParseClockHours(s string) (float64, error) {
	h, m, err := splitClock(s)
	if err != nil {
		return 0, err
	}
	return math.Round((float64(h)+float64(m)/60)*1000) / 1000, nil
}

func splitClock(s string) (int, int, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid clock string %q", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, fmt.Errorf("invalid clock string %q: %v", s, err)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0, fmt.Errorf("invalid clock string %q: %v", s, err)
	}
	return h, m, nil
}
