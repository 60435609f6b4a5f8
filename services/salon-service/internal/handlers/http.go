package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/md-rashed-zaman/salonbook/libs/httpx"
	"github.com/md-rashed-zaman/salonbook/services/salon-service/internal/cache"
	"github.com/md-rashed-zaman/salonbook/services/salon-service/internal/calendar"
	"github.com/md-rashed-zaman/salonbook/services/salon-service/internal/model"
	"github.com/md-rashed-zaman/salonbook/services/salon-service/internal/storage"
)

// Store is the appointment store the API runs on. storage.Repository implements it.
type Store interface {
	ListServices(ctx context.Context) ([]model.Service, error)
	ServiceByName(ctx context.Context, name string) (model.Service, bool, error)
	ListActiveByDate(ctx context.Context, date string) ([]model.Appointment, error)
	List(ctx context.Context, f model.Filter) ([]model.Appointment, error)
	Get(ctx context.Context, id int64) (model.Appointment, error)
	PendingReminders(ctx context.Context, from, to calendar.Moment) ([]model.Appointment, error)
	Create(ctx context.Context, appt *model.Appointment) error
	Update(ctx context.Context, id int64, p model.Patch) (model.Change, error)
	Cancel(ctx context.Context, id int64) (model.Change, error)
	MarkReminderSent(ctx context.Context, id int64) (model.Appointment, error)
}

// OccupancyCache holds per-date booked lists for availability lookups.
type OccupancyCache interface {
	Get(ctx context.Context, date string) ([]model.Appointment, bool)
	Set(ctx context.Context, date string, appts []model.Appointment)
	Invalidate(ctx context.Context, dates ...string)
}

type PhoneNormalizer interface {
	Normalize(raw string) string
}

type Deps struct {
	Store           Store
	Cache           OccupancyCache
	Calendar        calendar.Config
	Phones          PhoneNormalizer
	Now             func() time.Time
	Logger          *slog.Logger
	ReminderLead    time.Duration
	DefaultDuration int
	ServiceName     string
}

type Handler struct {
	store           Store
	cache           OccupancyCache
	cal             calendar.Config
	phones          PhoneNormalizer
	now             func() time.Time
	logger          *slog.Logger
	reminderLead    time.Duration
	defaultDuration int
	serviceName     string
}

type identityPhones struct{}

func (identityPhones) Normalize(raw string) string { return strings.TrimSpace(raw) }

func New(d Deps) *Handler {
	h := &Handler{
		store:           d.Store,
		cache:           d.Cache,
		cal:             d.Calendar,
		phones:          d.Phones,
		now:             d.Now,
		logger:          d.Logger,
		reminderLead:    d.ReminderLead,
		defaultDuration: d.DefaultDuration,
		serviceName:     d.ServiceName,
	}
	if h.cache == nil {
		h.cache = cache.Noop{}
	}
	if h.phones == nil {
		h.phones = identityPhones{}
	}
	if h.now == nil {
		h.now = time.Now
	}
	if h.logger == nil {
		h.logger = slog.Default()
	}
	if h.reminderLead <= 0 {
		h.reminderLead = 15 * time.Minute
	}
	if h.defaultDuration <= 0 {
		h.defaultDuration = 30
	}
	if h.serviceName == "" {
		h.serviceName = "salon-service"
	}
	return h
}

func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/health", h.Health)
	mux.HandleFunc("GET /api/services", h.ListServices)
	mux.HandleFunc("GET /api/availability", h.Availability)
	mux.HandleFunc("GET /api/clients", h.ListClients)
	mux.HandleFunc("GET /api/appointments", h.ListAppointments)
	mux.HandleFunc("POST /api/appointments", h.CreateAppointment)
	mux.HandleFunc("GET /api/appointments/pending-reminders", h.PendingReminders)
	mux.HandleFunc("GET /api/appointments/{id}", h.GetAppointment)
	mux.HandleFunc("PUT /api/appointments/{id}", h.UpdateAppointment)
	mux.HandleFunc("PUT /api/appointments/{id}/reminder-sent", h.MarkReminderSent)
	mux.HandleFunc("DELETE /api/appointments/{id}", h.CancelAppointment)
}

func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	httpx.WriteJSON(w, http.StatusOK, map[string]string{
		"status":    "ok",
		"service":   h.serviceName,
		"timestamp": h.now().UTC().Format(time.RFC3339),
	})
}

func (h *Handler) ListServices(w http.ResponseWriter, r *http.Request) {
	services, err := h.store.ListServices(r.Context())
	if err != nil {
		h.internalError(w, r, "list services", err)
		return
	}
	httpx.OK(w, http.StatusOK, services, "")
}

func (h *Handler) Availability(w http.ResponseWriter, r *http.Request) {
	raw := strings.TrimSpace(r.URL.Query().Get("date"))
	if raw == "" {
		httpx.Fail(w, http.StatusBadRequest, `query parameter "date" is required (YYYY-MM-DD)`)
		return
	}
	day, err := calendar.ParseDate(raw, h.cal.Location)
	if err != nil {
		httpx.Fail(w, http.StatusBadRequest, "invalid date format, use YYYY-MM-DD")
		return
	}

	now := h.now()
	var booked []model.Appointment
	// Closed and past days resolve without bookings.
	if !h.cal.IsDayOff(day.Weekday()) && raw >= h.cal.Today(now) {
		booked, err = h.bookedOn(r.Context(), raw)
		if err != nil {
			h.internalError(w, r, "load occupancy", err)
			return
		}
	}
	httpx.OK(w, http.StatusOK, h.cal.Resolve(day, booked, now), "")
}

func (h *Handler) bookedOn(ctx context.Context, date string) ([]model.Appointment, error) {
	if appts, ok := h.cache.Get(ctx, date); ok {
		return appts, nil
	}
	appts, err := h.store.ListActiveByDate(ctx, date)
	if err != nil {
		return nil, err
	}
	h.cache.Set(ctx, date, appts)
	return appts, nil
}

func (h *Handler) ListAppointments(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var f model.Filter
	if date := strings.TrimSpace(q.Get("date")); date != "" {
		if _, err := calendar.ParseDate(date, nil); err != nil {
			httpx.Fail(w, http.StatusBadRequest, "invalid date format, use YYYY-MM-DD")
			return
		}
		f.Date = date
	}
	if raw := strings.TrimSpace(q.Get("status")); raw != "" {
		status, ok := model.ParseStatus(raw)
		if !ok {
			httpx.Fail(w, http.StatusBadRequest, "invalid status, use confirmed, cancelled or completed")
			return
		}
		f.Status = status
	}
	if phone := q.Get("phone"); strings.TrimSpace(phone) != "" {
		f.Phone = h.phones.Normalize(phone)
	}

	appts, err := h.store.List(r.Context(), f)
	if err != nil {
		h.internalError(w, r, "list appointments", err)
		return
	}
	httpx.OK(w, http.StatusOK, appts, "")
}

func (h *Handler) ListClients(w http.ResponseWriter, r *http.Request) {
	appts, err := h.store.List(r.Context(), model.Filter{})
	if err != nil {
		h.internalError(w, r, "list clients", err)
		return
	}
	httpx.OK(w, http.StatusOK, model.Clients(appts), "")
}

func (h *Handler) GetAppointment(w http.ResponseWriter, r *http.Request) {
	id, ok := appointmentID(w, r)
	if !ok {
		return
	}
	appt, err := h.store.Get(r.Context(), id)
	if err != nil {
		h.storeError(w, r, "get appointment", err)
		return
	}
	httpx.OK(w, http.StatusOK, appt, "")
}

// PendingReminders lists appointments starting within the reminder lead that have
// not been reminded yet.
func (h *Handler) PendingReminders(w http.ResponseWriter, r *http.Request) {
	from, to := calendar.ReminderWindow(h.cal.In(h.now()), h.reminderLead)
	appts, err := h.store.PendingReminders(r.Context(), from, to)
	if err != nil {
		h.internalError(w, r, "list pending reminders", err)
		return
	}
	httpx.OK(w, http.StatusOK, appts, "")
}

type createAppointmentRequest struct {
	ClientName    string `json:"client_name"`
	ClientPhone   string `json:"client_phone"`
	ClientChannel string `json:"client_channel"`
	Service       string `json:"service"`
	Date          string `json:"date"`
	Time          string `json:"time"`
}

func (h *Handler) CreateAppointment(w http.ResponseWriter, r *http.Request) {
	var req createAppointmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.Fail(w, http.StatusBadRequest, "invalid json body")
		return
	}
	req.ClientName = strings.TrimSpace(req.ClientName)
	req.ClientPhone = strings.TrimSpace(req.ClientPhone)
	req.ClientChannel = strings.TrimSpace(req.ClientChannel)
	req.Service = strings.TrimSpace(req.Service)
	req.Date = strings.TrimSpace(req.Date)
	req.Time = strings.TrimSpace(req.Time)

	if req.ClientName == "" || req.ClientPhone == "" || req.Service == "" || req.Date == "" || req.Time == "" {
		httpx.Fail(w, http.StatusBadRequest, "missing required fields: client_name, client_phone, service, date, time")
		return
	}
	if msg := validateSlot(req.Date, req.Time); msg != "" {
		httpx.Fail(w, http.StatusBadRequest, msg)
		return
	}
	if req.ClientChannel == "" {
		req.ClientChannel = model.DefaultChannel
	}

	ctx := r.Context()
	duration := h.defaultDuration
	svc, found, err := h.store.ServiceByName(ctx, req.Service)
	if err != nil {
		h.internalError(w, r, "look up service", err)
		return
	}
	if found {
		duration = svc.DurationMin
	}

	appt := &model.Appointment{
		ClientName:    req.ClientName,
		ClientPhone:   h.phones.Normalize(req.ClientPhone),
		ClientChannel: req.ClientChannel,
		Service:       req.Service,
		Date:          req.Date,
		Time:          req.Time,
		DurationMin:   duration,
	}
	if err := h.store.Create(ctx, appt); err != nil {
		h.storeError(w, r, "create appointment", err)
		return
	}
	h.cache.Invalidate(ctx, appt.Date)

	h.logger.Info("appointment booked",
		"request_id", httpx.RequestIDFromContext(ctx),
		"appointment_id", appt.ID,
		"date", appt.Date,
		"time", appt.Time,
	)
	httpx.OK(w, http.StatusCreated, appt,
		fmt.Sprintf("appointment confirmed for %s on %s at %s", appt.ClientName, appt.Date, appt.Time))
}

type updateAppointmentRequest struct {
	ClientName    *string `json:"client_name"`
	ClientPhone   *string `json:"client_phone"`
	ClientChannel *string `json:"client_channel"`
	Service       *string `json:"service"`
	Date          *string `json:"date"`
	Time          *string `json:"time"`
	Status        *string `json:"status"`
}

func (req updateAppointmentRequest) patch(phones PhoneNormalizer) (model.Patch, string) {
	var p model.Patch
	for _, f := range []struct {
		name string
		in   *string
		out  **string
	}{
		{"client_name", req.ClientName, &p.ClientName},
		{"client_phone", req.ClientPhone, &p.ClientPhone},
		{"client_channel", req.ClientChannel, &p.ClientChannel},
		{"service", req.Service, &p.Service},
		{"date", req.Date, &p.Date},
		{"time", req.Time, &p.Time},
	} {
		if f.in == nil {
			continue
		}
		v := strings.TrimSpace(*f.in)
		if v == "" {
			return model.Patch{}, f.name + " cannot be empty"
		}
		*f.out = &v
	}
	if p.Date != nil {
		if _, err := calendar.ParseDate(*p.Date, nil); err != nil {
			return model.Patch{}, "invalid date format, use YYYY-MM-DD"
		}
	}
	if p.Time != nil {
		if _, err := calendar.ParseClock(*p.Time); err != nil {
			return model.Patch{}, "invalid time format, use HH:MM"
		}
	}
	if p.ClientPhone != nil {
		normalized := phones.Normalize(*p.ClientPhone)
		p.ClientPhone = &normalized
	}
	if req.Status != nil {
		status, ok := model.ParseStatus(strings.TrimSpace(*req.Status))
		if !ok {
			return model.Patch{}, "invalid status, use confirmed, cancelled or completed"
		}
		p.Status = &status
	}
	return p, ""
}

func (h *Handler) UpdateAppointment(w http.ResponseWriter, r *http.Request) {
	id, ok := appointmentID(w, r)
	if !ok {
		return
	}
	var req updateAppointmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.Fail(w, http.StatusBadRequest, "invalid json body")
		return
	}
	p, msg := req.patch(h.phones)
	if msg != "" {
		httpx.Fail(w, http.StatusBadRequest, msg)
		return
	}

	ctx := r.Context()
	if p.Empty() {
		appt, err := h.store.Get(ctx, id)
		if err != nil {
			h.storeError(w, r, "get appointment", err)
			return
		}
		httpx.OK(w, http.StatusOK, appt, "")
		return
	}

	change, err := h.store.Update(ctx, id, p)
	if err != nil {
		h.storeError(w, r, "update appointment", err)
		return
	}
	h.cache.Invalidate(ctx, change.Dates()...)
	httpx.OK(w, http.StatusOK, change.After, "")
}

func (h *Handler) MarkReminderSent(w http.ResponseWriter, r *http.Request) {
	id, ok := appointmentID(w, r)
	if !ok {
		return
	}
	appt, err := h.store.MarkReminderSent(r.Context(), id)
	if err != nil {
		h.storeError(w, r, "mark reminder sent", err)
		return
	}
	httpx.OK(w, http.StatusOK, appt, "reminder marked as sent")
}

// CancelAppointment soft-deletes: the row stays with status cancelled.
func (h *Handler) CancelAppointment(w http.ResponseWriter, r *http.Request) {
	id, ok := appointmentID(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	change, err := h.store.Cancel(ctx, id)
	if err != nil {
		h.storeError(w, r, "cancel appointment", err)
		return
	}
	h.cache.Invalidate(ctx, change.Dates()...)
	httpx.OK(w, http.StatusOK, change.After, fmt.Sprintf("appointment #%d cancelled", id))
}

func appointmentID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Fail(w, http.StatusBadRequest, "invalid appointment id")
		return 0, false
	}
	return id, true
}

func validateSlot(date, at string) string {
	if _, err := calendar.ParseDate(date, nil); err != nil {
		return "invalid date format, use YYYY-MM-DD"
	}
	if _, err := calendar.ParseClock(at); err != nil {
		return "invalid time format, use HH:MM"
	}
	return ""
}

func (h *Handler) storeError(w http.ResponseWriter, r *http.Request, op string, err error) {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		httpx.Fail(w, http.StatusNotFound, "appointment not found")
	case errors.Is(err, storage.ErrSlotTaken):
		httpx.Fail(w, http.StatusConflict, "that time slot is already booked, please pick another")
	case errors.Is(err, model.ErrInvalidTransition):
		httpx.Fail(w, http.StatusConflict, err.Error())
	default:
		h.internalError(w, r, op, err)
	}
}

func (h *Handler) internalError(w http.ResponseWriter, r *http.Request, op string, err error) {
	h.logger.Error(op+" failed",
		"request_id", httpx.RequestIDFromContext(r.Context()),
		"err", err,
	)
	httpx.Fail(w, http.StatusInternalServerError, err.Error())
}
