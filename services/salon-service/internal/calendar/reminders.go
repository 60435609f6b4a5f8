package calendar

import "time"

// Moment is a civil date and wall-clock time as stored on appointments.
type Moment struct {
	Date string
	Time string
}

func MomentOf(t time.Time) Moment {
	return Moment{Date: t.Format(DateLayout), Time: ClockOf(t).String()}
}

// Before orders moments; stored formats sort lexically.
func (m Moment) Before(o Moment) bool {
	if m.Date != o.Date {
		return m.Date < o.Date
	}
	return m.Time < o.Time
}

// ReminderWindow returns the half-open range (from, to] of appointment starts due a
// reminder: strictly after now and no later than now+lead, in now's location.
func ReminderWindow(now time.Time, lead time.Duration) (from, to Moment) {
	return MomentOf(now), MomentOf(now.Add(lead))
}

// InWindow reports whether m falls in (from, to].
func InWindow(m, from, to Moment) bool {
	return from.Before(m) && !to.Before(m)
}
