package outbox

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/md-rashed-zaman/salonbook/services/salon-service/internal/model"
)

// Event is the domain event envelope written to the outbox table.
// The Kafka topic name equals EventType.
type Event struct {
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

const AggregateAppointment = "appointment"

const (
	EventAppointmentBooked       = "salon.appointment.booked.v1"
	EventAppointmentUpdated      = "salon.appointment.updated.v1"
	EventAppointmentCancelled    = "salon.appointment.cancelled.v1"
	EventAppointmentCompleted    = "salon.appointment.completed.v1"
	EventAppointmentReminderSent = "salon.appointment.reminder_sent.v1"
)

type appointmentPayload struct {
	model.Appointment
	OccurredAt time.Time `json:"occurred_at"`
}

// AppointmentEvent builds an event carrying the appointment as the API renders it.
func AppointmentEvent(eventType string, appt model.Appointment, occurredAt time.Time) (Event, error) {
	payload, err := json.Marshal(appointmentPayload{Appointment: appt, OccurredAt: occurredAt.UTC()})
	if err != nil {
		return Event{}, err
	}
	return Event{
		AggregateType: AggregateAppointment,
		AggregateID:   strconv.FormatInt(appt.ID, 10),
		EventType:     eventType,
		Payload:       payload,
	}, nil
}

// UpdateEventType names the event for a change from before to after.
func UpdateEventType(before, after model.Appointment) string {
	if before.Status != after.Status {
		switch after.Status {
		case model.StatusCancelled:
			return EventAppointmentCancelled
		case model.StatusCompleted:
			return EventAppointmentCompleted
		}
	}
	return EventAppointmentUpdated
}
