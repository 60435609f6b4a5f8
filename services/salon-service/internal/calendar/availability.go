package calendar

import (
	"sort"
	"strings"
	"time"

	"github.com/md-rashed-zaman/salonbook/services/salon-service/internal/model"
)

const PastDateMessage = "bookings cannot be made for past dates"

// Occupied is a booked slot as shown to the dashboard.
type Occupied struct {
	Time        string `json:"time"`
	DurationMin int    `json:"duration_min"`
	Service     string `json:"service"`
	ClientName  string `json:"client_name"`
}

type Availability struct {
	Date           string     `json:"date"`
	Message        string     `json:"message,omitempty"`
	BusinessHours  string     `json:"business_hours,omitempty"`
	TotalSlots     int        `json:"total_slots"`
	AvailableCount int        `json:"available_count"`
	OccupiedCount  int        `json:"occupied_count"`
	Available      []string   `json:"available_slots"`
	Occupied       []Occupied `json:"occupied_slots"`
}

// Resolve classifies the slots of day, a date at midnight in the business time zone.
// A slot is occupied only when a booked appointment starts exactly at it; durations
// are not taken into account. On today's date slots at or before the current minute
// are dropped.
func (c Config) Resolve(day time.Time, booked []model.Appointment, now time.Time) Availability {
	loc := c.location()
	day = day.In(loc)
	date := day.Format(DateLayout)
	out := Availability{
		Date:      date,
		Available: make([]string, 0),
		Occupied:  make([]Occupied, 0),
	}

	if c.IsDayOff(day.Weekday()) {
		out.Message = c.closedMessage()
		return out
	}
	today := c.Today(now)
	if date < today {
		out.Message = PastDateMessage
		return out
	}

	taken := make(map[string]struct{}, len(booked))
	for _, a := range booked {
		if a.Status == model.StatusCancelled || a.Date != date {
			continue
		}
		taken[a.Time] = struct{}{}
		out.Occupied = append(out.Occupied, Occupied{
			Time:        a.Time,
			DurationMin: a.DurationMin,
			Service:     a.Service,
			ClientName:  a.ClientName,
		})
	}
	sort.SliceStable(out.Occupied, func(i, j int) bool { return out.Occupied[i].Time < out.Occupied[j].Time })

	cutoff := Clock(-1)
	if date == today {
		cutoff = ClockOf(now.In(loc))
	}

	all := c.Slots()
	for _, slot := range all {
		if _, ok := taken[slot]; ok {
			continue
		}
		if cutoff >= 0 {
			if at, err := ParseClock(slot); err == nil && at <= cutoff {
				continue
			}
		}
		out.Available = append(out.Available, slot)
	}

	out.BusinessHours = c.Hours()
	out.TotalSlots = len(all)
	out.AvailableCount = len(out.Available)
	out.OccupiedCount = len(out.Occupied)
	return out
}

func (c Config) closedMessage() string {
	names := make([]string, 0, len(c.DaysOff))
	for _, d := range c.DaysOff {
		names = append(names, d.String())
	}
	return "the salon is closed on " + strings.Join(names, ", ")
}
