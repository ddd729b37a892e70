package scheduler

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// fieldSpec is a parsed cron field: the set of values it matches, in the
// field's valid range.
type fieldSpec struct {
	values map[int]bool
}

func (f fieldSpec) matches(v int) bool { return f.values[v] }

// Schedule is a parsed five-field classic cron expression: minute, hour,
// day-of-month, month, day-of-week. Generalized from cron_service.go's
// calculateNextRun, which only ever parsed the first two fields — this
// adds day-of-month/month/day-of-week plus comma lists, ranges and step
// values (*/N) to each field, matching standard cron grammar.
type Schedule struct {
	minute, hour, dom, month, dow fieldSpec
	raw                           string
}

// ParseSchedule parses a five-field cron expression, or one of the
// @hourly/@daily/@weekly/@monthly shorthands.
func ParseSchedule(expr string) (*Schedule, error) {
	expr = strings.TrimSpace(expr)
	switch expr {
	case "@hourly":
		return ParseSchedule("0 * * * *")
	case "@daily", "@midnight":
		return ParseSchedule("0 0 * * *")
	case "@weekly":
		return ParseSchedule("0 0 * * 0")
	case "@monthly":
		return ParseSchedule("0 0 1 * *")
	case "@yearly", "@annually":
		return ParseSchedule("0 0 1 1 *")
	}

	fields := strings.Fields(expr)
	if len(fields) != 5 {
		return nil, fmt.Errorf("cron expression must have 5 fields, got %d: %q", len(fields), expr)
	}

	minute, err := parseField(fields[0], 0, 59)
	if err != nil {
		return nil, fmt.Errorf("minute field: %w", err)
	}
	hour, err := parseField(fields[1], 0, 23)
	if err != nil {
		return nil, fmt.Errorf("hour field: %w", err)
	}
	dom, err := parseField(fields[2], 1, 31)
	if err != nil {
		return nil, fmt.Errorf("day-of-month field: %w", err)
	}
	month, err := parseField(fields[3], 1, 12)
	if err != nil {
		return nil, fmt.Errorf("month field: %w", err)
	}
	dow, err := parseField(fields[4], 0, 6)
	if err != nil {
		return nil, fmt.Errorf("day-of-week field: %w", err)
	}

	return &Schedule{minute: minute, hour: hour, dom: dom, month: month, dow: dow, raw: expr}, nil
}

// String returns the original expression text.
func (s *Schedule) String() string { return s.raw }

// Next returns the first matching time strictly after `after`, scanning
// minute-by-minute up to two years out (cron's day-of-month/day-of-week
// combination has no closed form, so standard cron implementations all
// scan forward like this).
func (s *Schedule) Next(after time.Time) (time.Time, error) {
	t := after.Truncate(time.Minute).Add(time.Minute)
	limit := after.AddDate(2, 0, 0)
	for t.Before(limit) {
		if s.month.matches(int(t.Month())) && s.dom.matches(t.Day()) && s.dow.matches(int(t.Weekday())) &&
			s.hour.matches(t.Hour()) && s.minute.matches(t.Minute()) {
			return t, nil
		}
		t = t.Add(time.Minute)
	}
	return time.Time{}, fmt.Errorf("no matching time found for %q within 2 years", s.raw)
}

// parseField parses one cron field: "*", "*/N", "N", "N-M", "N-M/S", or a
// comma-separated list of any of those, all within [min, max].
func parseField(field string, min, max int) (fieldSpec, error) {
	spec := fieldSpec{values: make(map[int]bool)}
	for _, part := range strings.Split(field, ",") {
		if err := parseFieldPart(part, min, max, spec.values); err != nil {
			return fieldSpec{}, err
		}
	}
	if len(spec.values) == 0 {
		return fieldSpec{}, fmt.Errorf("empty field %q", field)
	}
	return spec, nil
}

func parseFieldPart(part string, min, max int, out map[int]bool) error {
	step := 1
	rangePart := part
	if idx := strings.IndexByte(part, '/'); idx >= 0 {
		rangePart = part[:idx]
		s, err := strconv.Atoi(part[idx+1:])
		if err != nil || s <= 0 {
			return fmt.Errorf("invalid step in %q", part)
		}
		step = s
	}

	lo, hi := min, max
	if rangePart != "*" {
		if dashIdx := strings.IndexByte(rangePart, '-'); dashIdx >= 0 {
			l, err := strconv.Atoi(rangePart[:dashIdx])
			if err != nil {
				return fmt.Errorf("invalid range start in %q", part)
			}
			h, err := strconv.Atoi(rangePart[dashIdx+1:])
			if err != nil {
				return fmt.Errorf("invalid range end in %q", part)
			}
			lo, hi = l, h
		} else {
			v, err := strconv.Atoi(rangePart)
			if err != nil {
				return fmt.Errorf("invalid value %q", rangePart)
			}
			lo, hi = v, v
			if step == 1 {
				// bare value, not a range — single point
				if v < min || v > max {
					return fmt.Errorf("value %d out of range [%d, %d]", v, min, max)
				}
				out[v] = true
				return nil
			}
		}
	}

	if lo < min || hi > max || lo > hi {
		return fmt.Errorf("range %d-%d out of bounds [%d, %d]", lo, hi, min, max)
	}
	for v := lo; v <= hi; v += step {
		out[v] = true
	}
	return nil
}
