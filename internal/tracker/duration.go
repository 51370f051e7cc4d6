package tracker

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	minutesPerHour = 60
	minutesPerDay  = 24 * minutesPerHour
	minutesPerWeek = 7 * minutesPerDay
)

// FormatMinutes renders an accumulated minute total as a human-readable
// duration, largest unit first, zero components omitted. Zero renders as
// "0m". The output is deterministic and parses back via ParseMinutes.
func FormatMinutes(minutes int64) string {
	if minutes <= 0 {
		return "0m"
	}

	var parts []string
	for _, unit := range []struct {
		size  int64
		label string
	}{
		{minutesPerWeek, "w"},
		{minutesPerDay, "d"},
		{minutesPerHour, "h"},
		{1, "m"},
	} {
		if n := minutes / unit.size; n > 0 {
			parts = append(parts, strconv.FormatInt(n, 10)+unit.label)
			minutes -= n * unit.size
		}
	}
	return strings.Join(parts, " ")
}

// ParseMinutes is the inverse of FormatMinutes.
func ParseMinutes(s string) (int64, error) {
	units := map[byte]int64{
		'w': minutesPerWeek,
		'd': minutesPerDay,
		'h': minutesPerHour,
		'm': 1,
	}

	var total int64
	for _, part := range strings.Fields(s) {
		if len(part) < 2 {
			return 0, fmt.Errorf("malformed duration component %q", part)
		}
		size, ok := units[part[len(part)-1]]
		if !ok {
			return 0, fmt.Errorf("unknown duration unit in %q", part)
		}
		n, err := strconv.ParseInt(part[:len(part)-1], 10, 64)
		if err != nil {
			return 0, fmt.Errorf("malformed duration component %q", part)
		}
		total += n * size
	}
	return total, nil
}
