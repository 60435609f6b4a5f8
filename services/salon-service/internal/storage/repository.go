package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/md-rashed-zaman/salonbook/libs/db"
	"github.com/md-rashed-zaman/salonbook/services/salon-service/internal/calendar"
	"github.com/md-rashed-zaman/salonbook/services/salon-service/internal/model"
	"github.com/md-rashed-zaman/salonbook/services/salon-service/internal/outbox"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var (
	ErrNotFound  = errors.New("appointment not found")
	ErrSlotTaken = errors.New("time slot already booked")
)

const appointmentColumns = `id, client_name, client_phone, client_channel, service, appt_date, appt_time,
	duration_min, status, reminder_sent, created_at, updated_at`

// Repository owns the appointments and services tables. Every mutation writes its
// outbox event in the same transaction.
type Repository struct {
	pool   *db.Pool
	outbox *outbox.Repository
	tracer trace.Tracer
	now    func() time.Time
}

func NewRepository(pool *db.Pool, outboxRepo *outbox.Repository) *Repository {
	return &Repository{
		pool:   pool,
		outbox: outboxRepo,
		tracer: otel.Tracer("salon/storage"),
		now:    time.Now,
	}
}

func (r *Repository) Ping(ctx context.Context) error {
	return db.ReadyCheck(r.pool)(ctx)
}

func (r *Repository) ListServices(ctx context.Context) ([]model.Service, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, name, duration_min, price::float8, active
		FROM services
		WHERE active
		ORDER BY name ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list services: %w", err)
	}
	defer rows.Close()

	services := make([]model.Service, 0)
	for rows.Next() {
		var s model.Service
		if err := rows.Scan(&s.ID, &s.Name, &s.DurationMin, &s.Price, &s.Active); err != nil {
			return nil, fmt.Errorf("scan service: %w", err)
		}
		services = append(services, s)
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("list services: %w", rows.Err())
	}
	return services, nil
}

// ServiceByName looks a service up by its exact name, active or not.
func (r *Repository) ServiceByName(ctx context.Context, name string) (model.Service, bool, error) {
	var s model.Service
	err := r.pool.QueryRow(ctx, `
		SELECT id, name, duration_min, price::float8, active
		FROM services
		WHERE name = $1
	`, name).Scan(&s.ID, &s.Name, &s.DurationMin, &s.Price, &s.Active)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Service{}, false, nil
	}
	if err != nil {
		return model.Service{}, false, fmt.Errorf("get service: %w", err)
	}
	return s, true, nil
}

// ListActiveByDate returns the non-cancelled appointments of date ordered by time.
func (r *Repository) ListActiveByDate(ctx context.Context, date string) ([]model.Appointment, error) {
	ctx, span := r.tracer.Start(ctx, "storage.ListActiveByDate", trace.WithAttributes(attribute.String("salon.date", date)))
	defer span.End()

	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE appt_date = $1 AND status <> 'cancelled'
		ORDER BY appt_time ASC
	`, date)
	if err != nil {
		return nil, spanError(span, fmt.Errorf("list appointments by date: %w", err))
	}
	return collectAppointments(rows)
}

// List returns appointments matching f ordered by date and time.
func (r *Repository) List(ctx context.Context, f model.Filter) ([]model.Appointment, error) {
	var (
		where []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if f.Date != "" {
		add("appt_date = $%d", f.Date)
	}
	if f.Status != "" {
		add("status = $%d", string(f.Status))
	}
	if f.Phone != "" {
		add("client_phone = $%d", f.Phone)
	}

	query := `SELECT ` + appointmentColumns + ` FROM appointments`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY appt_date ASC, appt_time ASC`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	return collectAppointments(rows)
}

func (r *Repository) Get(ctx context.Context, id int64) (model.Appointment, error) {
	appt, err := scanAppointment(r.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id))
	if err != nil {
		return model.Appointment{}, notFound(err, "get appointment")
	}
	return appt, nil
}

// PendingReminders lists confirmed appointments not yet reminded whose start lies in (from, to].
func (r *Repository) PendingReminders(ctx context.Context, from, to calendar.Moment) ([]model.Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE status = 'confirmed'
			AND NOT reminder_sent
			AND (appt_date, appt_time) > ($1, $2)
			AND (appt_date, appt_time) <= ($3, $4)
		ORDER BY appt_date ASC, appt_time ASC
	`, from.Date, from.Time, to.Date, to.Time)
	if err != nil {
		return nil, fmt.Errorf("list pending reminders: %w", err)
	}
	return collectAppointments(rows)
}

// Create inserts appt as confirmed unless a live appointment already holds its slot.
// The check and the insert are one statement guarded by the partial unique index,
// so concurrent requests for the same slot cannot both succeed.
func (r *Repository) Create(ctx context.Context, appt *model.Appointment) error {
	ctx, span := r.tracer.Start(ctx, "storage.CreateAppointment", trace.WithAttributes(
		attribute.String("salon.date", appt.Date),
		attribute.String("salon.time", appt.Time),
	))
	defer span.End()

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return spanError(span, fmt.Errorf("begin: %w", err))
	}
	defer func() { _ = tx.Rollback(ctx) }()

	created, err := scanAppointment(tx.QueryRow(ctx, `
		INSERT INTO appointments
			(client_name, client_phone, client_channel, service, appt_date, appt_time, duration_min, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 'confirmed')
		ON CONFLICT (appt_date, appt_time) WHERE status <> 'cancelled' DO NOTHING
		RETURNING `+appointmentColumns,
		appt.ClientName, appt.ClientPhone, appt.ClientChannel, appt.Service, appt.Date, appt.Time, appt.DurationMin))
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrSlotTaken
	}
	if err != nil {
		return spanError(span, fmt.Errorf("insert appointment: %w", err))
	}

	if err := r.writeEvent(ctx, tx, outbox.EventAppointmentBooked, created); err != nil {
		return spanError(span, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return spanError(span, fmt.Errorf("commit: %w", err))
	}
	span.SetAttributes(attribute.Int64("salon.appointment_id", created.ID))
	*appt = created
	return nil
}

// Update applies p to the appointment id under a row lock.
func (r *Repository) Update(ctx context.Context, id int64, p model.Patch) (model.Change, error) {
	ctx, span := r.tracer.Start(ctx, "storage.UpdateAppointment", trace.WithAttributes(attribute.Int64("salon.appointment_id", id)))
	defer span.End()

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return model.Change{}, spanError(span, fmt.Errorf("begin: %w", err))
	}
	defer func() { _ = tx.Rollback(ctx) }()

	before, err := scanAppointment(tx.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
		FOR UPDATE
	`, id))
	if err != nil {
		return model.Change{}, notFound(err, "lock appointment")
	}

	next, err := p.Apply(before)
	if err != nil {
		return model.Change{}, err
	}
	if next == before {
		return model.Change{Before: before, After: before}, nil
	}

	after, err := scanAppointment(tx.QueryRow(ctx, `
		UPDATE appointments
		SET client_name = $2,
			client_phone = $3,
			client_channel = $4,
			service = $5,
			appt_date = $6,
			appt_time = $7,
			status = $8,
			updated_at = now()
		WHERE id = $1
		RETURNING `+appointmentColumns,
		id, next.ClientName, next.ClientPhone, next.ClientChannel, next.Service, next.Date, next.Time, string(next.Status)))
	if err != nil {
		if IsUniqueViolation(err) {
			return model.Change{}, ErrSlotTaken
		}
		return model.Change{}, spanError(span, fmt.Errorf("update appointment: %w", err))
	}

	if err := r.writeEvent(ctx, tx, outbox.UpdateEventType(before, after), after); err != nil {
		return model.Change{}, spanError(span, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return model.Change{}, spanError(span, fmt.Errorf("commit: %w", err))
	}
	return model.Change{Before: before, After: after}, nil
}

// Cancel soft-deletes the appointment.
func (r *Repository) Cancel(ctx context.Context, id int64) (model.Change, error) {
	cancelled := model.StatusCancelled
	return r.Update(ctx, id, model.Patch{Status: &cancelled})
}

// MarkReminderSent sets the reminder flag. The flag is never cleared, and marking
// an already reminded appointment writes no event.
func (r *Repository) MarkReminderSent(ctx context.Context, id int64) (model.Appointment, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return model.Appointment{}, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	current, err := scanAppointment(tx.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
		FOR UPDATE
	`, id))
	if err != nil {
		return model.Appointment{}, notFound(err, "lock appointment")
	}
	if current.ReminderSent {
		return current, nil
	}

	updated, err := scanAppointment(tx.QueryRow(ctx, `
		UPDATE appointments
		SET reminder_sent = TRUE, updated_at = now()
		WHERE id = $1
		RETURNING `+appointmentColumns, id))
	if err != nil {
		return model.Appointment{}, fmt.Errorf("mark reminder sent: %w", err)
	}
	if err := r.writeEvent(ctx, tx, outbox.EventAppointmentReminderSent, updated); err != nil {
		return model.Appointment{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return model.Appointment{}, fmt.Errorf("commit: %w", err)
	}
	return updated, nil
}

func (r *Repository) writeEvent(ctx context.Context, tx pgx.Tx, eventType string, appt model.Appointment) error {
	evt, err := outbox.AppointmentEvent(eventType, appt, r.now())
	if err != nil {
		return fmt.Errorf("build %s event: %w", eventType, err)
	}
	if err := r.outbox.Insert(ctx, tx, evt); err != nil {
		return fmt.Errorf("write %s event: %w", eventType, err)
	}
	return nil
}

func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func IsNotFound(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

func notFound(err error, op string) error {
	if IsNotFound(err) {
		return ErrNotFound
	}
	return fmt.Errorf("%s: %w", op, err)
}

func spanError(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

func scanAppointment(row pgx.Row) (model.Appointment, error) {
	var a model.Appointment
	var status string
	err := row.Scan(
		&a.ID,
		&a.ClientName,
		&a.ClientPhone,
		&a.ClientChannel,
		&a.Service,
		&a.Date,
		&a.Time,
		&a.DurationMin,
		&status,
		&a.ReminderSent,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		return model.Appointment{}, err
	}
	a.Status = model.Status(status)
	return a, nil
}

func collectAppointments(rows pgx.Rows) ([]model.Appointment, error) {
	defer rows.Close()
	appts := make([]model.Appointment, 0)
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan appointment: %w", err)
		}
		appts = append(appts, a)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return appts, nil
}
