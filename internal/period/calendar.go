package period

import (
	"errors"
	"fmt"
	"strconv"
	"time"
)

var ErrInvalidPeriodID = errors.New("invalid period id")

const dayLayout = "20060102"

// Calendar knows where gaming days begin and when the daily maintenance window blocks new periods.
type Calendar struct {
	Location         *time.Location
	DayBoundaryHour  int
	MaintenanceStart int // hour, inclusive
	MaintenanceEnd   int // hour, exclusive
	LastOpenCutoff   time.Duration
}

func DefaultCalendar(loc *time.Location) Calendar {
	return Calendar{
		Location:         loc,
		DayBoundaryHour:  7,
		MaintenanceStart: 6,
		MaintenanceEnd:   7,
		LastOpenCutoff:   120 * time.Second,
	}
}

// GameDay returns the yyyymmdd of the gaming day t falls in. Times before the
// boundary hour still belong to the previous calendar day.
func (c Calendar) GameDay(t time.Time) string {
	local := t.In(c.Location)
	if local.Hour() < c.DayBoundaryHour {
		local = local.AddDate(0, 0, -1)
	}
	return local.Format(dayLayout)
}

func (c Calendar) InMaintenance(t time.Time) bool {
	h := t.In(c.Location).Hour()
	return h >= c.MaintenanceStart && h < c.MaintenanceEnd
}

// CanOpen reports whether a new betting window may start at t. Nothing opens inside the
// maintenance window or within LastOpenCutoff before it.
func (c Calendar) CanOpen(t time.Time) bool {
	if c.InMaintenance(t) {
		return false
	}
	local := t.In(c.Location)
	start := time.Date(local.Year(), local.Month(), local.Day(), c.MaintenanceStart, 0, 0, 0, c.Location)
	return !(local.Before(start) && !local.Before(start.Add(-c.LastOpenCutoff)))
}

// NextID returns the identifier that follows prev at time now. The sequence resets to 1
// whenever the gaming day changes.
func (c Calendar) NextID(prev string, now time.Time) string {
	day := c.GameDay(now)
	if prev != "" {
		if prevDay, seq, err := ParseID(prev); err == nil && prevDay == day {
			return FormatID(day, seq+1)
		}
	}
	return FormatID(day, 1)
}

// FormatID renders day + sequence, zero padded to three digits; sequences past 999 widen.
func FormatID(day string, seq int) string {
	return fmt.Sprintf("%s%03d", day, seq)
}

func ParseID(id string) (string, int, error) {
	if len(id) < 11 {
		return "", 0, fmt.Errorf("%w: %q", ErrInvalidPeriodID, id)
	}
	day := id[:8]
	if _, err := time.Parse(dayLayout, day); err != nil {
		return "", 0, fmt.Errorf("%w: %q", ErrInvalidPeriodID, id)
	}
	seq, err := strconv.Atoi(id[8:])
	if err != nil || seq < 1 {
		return "", 0, fmt.Errorf("%w: %q", ErrInvalidPeriodID, id)
	}
	return day, seq, nil
}

// Compare orders period identifiers chronologically. Plain string comparison breaks once a
// day passes 999 periods, so day and sequence are compared separately.
func Compare(a, b string) int {
	da, sa, errA := ParseID(a)
	db, sb, errB := ParseID(b)
	if errA != nil || errB != nil {
		switch {
		case a < b:
			return -1
		case a > b:
			return 1
		}
		return 0
	}
	switch {
	case da < db:
		return -1
	case da > db:
		return 1
	case sa < sb:
		return -1
	case sa > sb:
		return 1
	}
	return 0
}
