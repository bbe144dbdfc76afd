package pipeline

import (
	"fmt"
	"strconv"
	"strings"
)

type cronField struct {
	name string
	min  int
	max  int
}

var cronFields = []cronField{
	{"minute", 0, 59},
	{"hour", 0, 23},
	{"day-of-month", 1, 31},
	{"month", 1, 12},
	{"day-of-week", 0, 6},
}

// ValidateCron checks a classic five-field cron expression
// (minute hour day-of-month month day-of-week). Supported syntax per field:
// "*", "*/n", single values, ranges "a-b", and comma lists of those.
func ValidateCron(expr string) error {
	fields := strings.Fields(expr)
	if len(fields) != len(cronFields) {
		return fmt.Errorf("cron %q: want %d fields, got %d", expr, len(cronFields), len(fields))
	}
	for i, f := range fields {
		if err := validateCronField(f, cronFields[i]); err != nil {
			return fmt.Errorf("cron %q: %w", expr, err)
		}
	}
	return nil
}

func validateCronField(s string, f cronField) error {
	for _, part := range strings.Split(s, ",") {
		if part == "*" {
			continue
		}
		if step, ok := strings.CutPrefix(part, "*/"); ok {
			n, err := strconv.Atoi(step)
			if err != nil || n <= 0 {
				return fmt.Errorf("%s: bad step %q", f.name, part)
			}
			continue
		}
		lo, hi, isRange := strings.Cut(part, "-")
		a, err := strconv.Atoi(lo)
		if err != nil {
			return fmt.Errorf("%s: bad value %q", f.name, part)
		}
		b := a
		if isRange {
			b, err = strconv.Atoi(hi)
			if err != nil {
				return fmt.Errorf("%s: bad range %q", f.name, part)
			}
		}
		if a < f.min || b > f.max || a > b {
			return fmt.Errorf("%s: %q out of range %d-%d", f.name, part, f.min, f.max)
		}
	}
	return nil
}
