package calendar

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Config describes when the business takes appointments.
type Config struct {
	Open        Clock
	Close       Clock
	SlotMinutes int
	DaysOff     []time.Weekday
	Location    *time.Location
}

func DefaultConfig() Config {
	return Config{
		Open:        9 * 60,
		Close:       19 * 60,
		SlotMinutes: 30,
		DaysOff:     []time.Weekday{time.Sunday},
		Location:    time.UTC,
	}
}

func (c Config) Validate() error {
	if c.Open >= c.Close {
		return fmt.Errorf("business hours: open %s must be before close %s", c.Open, c.Close)
	}
	if c.SlotMinutes <= 0 {
		return fmt.Errorf("business hours: slot size must be positive (got %d)", c.SlotMinutes)
	}
	return nil
}

func (c Config) location() *time.Location {
	if c.Location == nil {
		return time.UTC
	}
	return c.Location
}

func (c Config) Hours() string {
	return c.Open.String() + " - " + c.Close.String()
}

func (c Config) Slots() []string {
	return GenerateSlots(c.Open, c.Close, c.SlotMinutes)
}

func (c Config) IsDayOff(d time.Weekday) bool {
	for _, off := range c.DaysOff {
		if off == d {
			return true
		}
	}
	return false
}

// In converts t to the business time zone.
func (c Config) In(t time.Time) time.Time {
	return t.In(c.location())
}

// Today is the current civil date in the business time zone.
func (c Config) Today(now time.Time) string {
	return now.In(c.location()).Format(DateLayout)
}

var weekdays = map[string]time.Weekday{
	"sunday": time.Sunday, "sun": time.Sunday,
	"monday": time.Monday, "mon": time.Monday,
	"tuesday": time.Tuesday, "tue": time.Tuesday,
	"wednesday": time.Wednesday, "wed": time.Wednesday,
	"thursday": time.Thursday, "thu": time.Thursday,
	"friday": time.Friday, "fri": time.Friday,
	"saturday": time.Saturday, "sat": time.Saturday,
}

// ParseWeekdays accepts English day names, their three letter forms, or 0-6 with 0 as Sunday.
func ParseWeekdays(items []string) ([]time.Weekday, error) {
	out := make([]time.Weekday, 0, len(items))
	for _, raw := range items {
		item := strings.ToLower(strings.TrimSpace(raw))
		if item == "" {
			continue
		}
		if d, ok := weekdays[item]; ok {
			out = append(out, d)
			continue
		}
		n, err := strconv.Atoi(item)
		if err != nil || n < 0 || n > 6 {
			return nil, fmt.Errorf("unknown weekday %q", raw)
		}
		out = append(out, time.Weekday(n))
	}
	return out, nil
}
