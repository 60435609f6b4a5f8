package model

import (
	"errors"
	"time"
)

type Status string

const (
	StatusConfirmed Status = "confirmed"
	StatusCancelled Status = "cancelled"
	StatusCompleted Status = "completed"
)

const DefaultChannel = "whatsapp"

// ErrInvalidTransition is returned when a status change is not allowed.
var ErrInvalidTransition = errors.New("invalid status transition")

func ParseStatus(s string) (Status, bool) {
	switch Status(s) {
	case StatusConfirmed, StatusCancelled, StatusCompleted:
		return Status(s), true
	default:
		return "", false
	}
}

// CanTransition reports whether an appointment in status from may move to status to.
// Only confirmed appointments move. Rewriting the current status is a no-op.
func CanTransition(from, to Status) bool {
	if from == to {
		return true
	}
	return from == StatusConfirmed && (to == StatusCancelled || to == StatusCompleted)
}

type Appointment struct {
	ID            int64     `json:"id"`
	ClientName    string    `json:"client_name"`
	ClientPhone   string    `json:"client_phone"`
	ClientChannel string    `json:"client_channel"`
	Service       string    `json:"service"`
	Date          string    `json:"date"`
	Time          string    `json:"time"`
	DurationMin   int       `json:"duration_min"`
	Status        Status    `json:"status"`
	ReminderSent  bool      `json:"reminder_sent"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Patch is a partial update; nil fields keep their current value.
type Patch struct {
	ClientName    *string
	ClientPhone   *string
	ClientChannel *string
	Service       *string
	Date          *string
	Time          *string
	Status        *Status
}

func (p Patch) Empty() bool {
	return p.ClientName == nil && p.ClientPhone == nil && p.ClientChannel == nil &&
		p.Service == nil && p.Date == nil && p.Time == nil && p.Status == nil
}

// Apply returns a copy of a with the patch applied.
// Duration is left alone even when the service changes.
func (p Patch) Apply(a Appointment) (Appointment, error) {
	if p.Status != nil {
		if !CanTransition(a.Status, *p.Status) {
			return a, ErrInvalidTransition
		}
		a.Status = *p.Status
	}
	if p.ClientName != nil {
		a.ClientName = *p.ClientName
	}
	if p.ClientPhone != nil {
		a.ClientPhone = *p.ClientPhone
	}
	if p.ClientChannel != nil {
		a.ClientChannel = *p.ClientChannel
	}
	if p.Service != nil {
		a.Service = *p.Service
	}
	if p.Date != nil {
		a.Date = *p.Date
	}
	if p.Time != nil {
		a.Time = *p.Time
	}
	return a, nil
}

// Filter narrows appointment listings; empty fields match everything.
type Filter struct {
	Date   string
	Status Status
	Phone  string
}

// Change is an appointment before and after an update.
type Change struct {
	Before Appointment
	After  Appointment
}

// Dates lists the dates whose occupancy the change touched.
func (c Change) Dates() []string {
	if c.Before.Date == "" || c.Before.Date == c.After.Date {
		return []string{c.After.Date}
	}
	return []string{c.Before.Date, c.After.Date}
}
