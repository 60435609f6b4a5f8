package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/md-rashed-zaman/salonbook/services/salon-service/internal/calendar"
	"github.com/md-rashed-zaman/salonbook/services/salon-service/internal/model"
	"github.com/md-rashed-zaman/salonbook/services/salon-service/internal/storage"
)

type fakeStore struct {
	mu       sync.Mutex
	nextID   int64
	appts    map[int64]model.Appointment
	services []model.Service
	err      error
	dayLoads int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		appts: map[int64]model.Appointment{},
		services: []model.Service{
			{ID: 1, Name: "Corte de cabello", DurationMin: 30, Price: 5000, Active: true},
			{ID: 2, Name: "Mechas", DurationMin: 90, Price: 15000, Active: true},
		},
	}
}

func (s *fakeStore) sorted(keep func(model.Appointment) bool) []model.Appointment {
	out := make([]model.Appointment, 0)
	for _, a := range s.appts {
		if keep(a) {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[i].Date < out[j].Date
		}
		return out[i].Time < out[j].Time
	})
	return out
}

func (s *fakeStore) taken(date, at string, except int64) bool {
	for id, a := range s.appts {
		if id != except && a.Date == date && a.Time == at && a.Status != model.StatusCancelled {
			return true
		}
	}
	return false
}

func (s *fakeStore) ListServices(context.Context) ([]model.Service, error) {
	return s.services, s.err
}

func (s *fakeStore) ServiceByName(_ context.Context, name string) (model.Service, bool, error) {
	for _, svc := range s.services {
		if svc.Name == name {
			return svc, true, nil
		}
	}
	return model.Service{}, false, s.err
}

func (s *fakeStore) ListActiveByDate(_ context.Context, date string) ([]model.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dayLoads++
	return s.sorted(func(a model.Appointment) bool { return a.Date == date && a.Status != model.StatusCancelled }), s.err
}

func (s *fakeStore) List(_ context.Context, f model.Filter) ([]model.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	return s.sorted(func(a model.Appointment) bool {
		return (f.Date == "" || a.Date == f.Date) &&
			(f.Status == "" || a.Status == f.Status) &&
			(f.Phone == "" || a.ClientPhone == f.Phone)
	}), nil
}

func (s *fakeStore) Get(_ context.Context, id int64) (model.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.appts[id]
	if !ok {
		return model.Appointment{}, storage.ErrNotFound
	}
	return a, nil
}

func (s *fakeStore) PendingReminders(_ context.Context, from, to calendar.Moment) ([]model.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sorted(func(a model.Appointment) bool {
		return a.Status == model.StatusConfirmed && !a.ReminderSent &&
			calendar.InWindow(calendar.Moment{Date: a.Date, Time: a.Time}, from, to)
	}), nil
}

func (s *fakeStore) Create(_ context.Context, appt *model.Appointment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	if s.taken(appt.Date, appt.Time, 0) {
		return storage.ErrSlotTaken
	}
	s.nextID++
	appt.ID = s.nextID
	appt.Status = model.StatusConfirmed
	s.appts[appt.ID] = *appt
	return nil
}

func (s *fakeStore) Update(_ context.Context, id int64, p model.Patch) (model.Change, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	before, ok := s.appts[id]
	if !ok {
		return model.Change{}, storage.ErrNotFound
	}
	after, err := p.Apply(before)
	if err != nil {
		return model.Change{}, err
	}
	if after.Status != model.StatusCancelled && s.taken(after.Date, after.Time, id) {
		return model.Change{}, storage.ErrSlotTaken
	}
	s.appts[id] = after
	return model.Change{Before: before, After: after}, nil
}

func (s *fakeStore) Cancel(ctx context.Context, id int64) (model.Change, error) {
	cancelled := model.StatusCancelled
	return s.Update(ctx, id, model.Patch{Status: &cancelled})
}

func (s *fakeStore) MarkReminderSent(_ context.Context, id int64) (model.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.appts[id]
	if !ok {
		return model.Appointment{}, storage.ErrNotFound
	}
	a.ReminderSent = true
	s.appts[id] = a
	return a, nil
}

type fakeCache struct {
	entries     map[string][]model.Appointment
	invalidated []string
}

func (c *fakeCache) Get(_ context.Context, date string) ([]model.Appointment, bool) {
	a, ok := c.entries[date]
	return a, ok
}

func (c *fakeCache) Set(_ context.Context, date string, appts []model.Appointment) {
	c.entries[date] = appts
}

func (c *fakeCache) Invalidate(_ context.Context, dates ...string) {
	for _, d := range dates {
		delete(c.entries, d)
		c.invalidated = append(c.invalidated, d)
	}
}

type prefixPhones struct{}

func (prefixPhones) Normalize(raw string) string { return "+" + strings.TrimSpace(raw) }

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

type harness struct {
	store *fakeStore
	cache *fakeCache
	mux   *http.ServeMux
	now   time.Time
}

// 2026-03-04 is a Wednesday; Sunday is the day off.
func newHarness(t *testing.T) *harness {
	t.Helper()
	hs := &harness{
		store: newFakeStore(),
		cache: &fakeCache{entries: map[string][]model.Appointment{}},
		mux:   http.NewServeMux(),
		now:   time.Date(2026, 3, 4, 14, 5, 0, 0, time.UTC),
	}
	cal := calendar.DefaultConfig()
	h := New(Deps{
		Store:        hs.store,
		Cache:        hs.cache,
		Calendar:     cal,
		Phones:       prefixPhones{},
		Now:          func() time.Time { return hs.now },
		Logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
		ReminderLead: 15 * time.Minute,
	})
	h.Register(hs.mux)
	return hs
}

func (hs *harness) do(t *testing.T, method, path, body string) (int, envelope) {
	t.Helper()
	var rdr io.Reader
	if body != "" {
		rdr = strings.NewReader(body)
	}
	rw := httptest.NewRecorder()
	hs.mux.ServeHTTP(rw, httptest.NewRequest(method, path, rdr))
	var env envelope
	if err := json.Unmarshal(rw.Body.Bytes(), &env); err != nil {
		t.Fatalf("%s %s: decode %q: %v", method, path, rw.Body.String(), err)
	}
	return rw.Code, env
}

func (hs *harness) book(t *testing.T, date, at string) model.Appointment {
	t.Helper()
	code, env := hs.do(t, http.MethodPost, "/api/appointments",
		`{"client_name":"Ana","client_phone":"5491123456789","service":"Mechas","date":"`+date+`","time":"`+at+`"}`)
	if code != http.StatusCreated {
		t.Fatalf("book %s %s: expected 201, got %d (%s)", date, at, code, env.Error)
	}
	var appt model.Appointment
	if err := json.Unmarshal(env.Data, &appt); err != nil {
		t.Fatalf("decode appointment: %v", err)
	}
	return appt
}

func TestCreateAppointment(t *testing.T) {
	hs := newHarness(t)
	appt := hs.book(t, "2026-03-05", "10:00")

	if appt.ID == 0 || appt.Status != model.StatusConfirmed {
		t.Fatalf("unexpected appointment %+v", appt)
	}
	if appt.DurationMin != 90 {
		t.Fatalf("duration must come from the service, got %d", appt.DurationMin)
	}
	if appt.ClientChannel != model.DefaultChannel {
		t.Fatalf("expected default channel, got %q", appt.ClientChannel)
	}
	if appt.ClientPhone != "+5491123456789" {
		t.Fatalf("expected normalised phone, got %q", appt.ClientPhone)
	}
	if len(hs.cache.invalidated) != 1 || hs.cache.invalidated[0] != "2026-03-05" {
		t.Fatalf("expected cache invalidation for the date, got %v", hs.cache.invalidated)
	}

	code, env := hs.do(t, http.MethodPost, "/api/appointments",
		`{"client_name":"Beto","client_phone":"1","service":"Permanente","client_channel":"instagram","date":"2026-03-05","time":"10:30"}`)
	if code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", code)
	}
	var other model.Appointment
	_ = json.Unmarshal(env.Data, &other)
	if other.DurationMin != 30 || other.ClientChannel != "instagram" {
		t.Fatalf("unknown services default to 30 minutes, got %+v", other)
	}
	if !strings.Contains(env.Message, "Beto") {
		t.Fatalf("unexpected message %q", env.Message)
	}
}

func TestCreateAppointmentConflict(t *testing.T) {
	hs := newHarness(t)
	hs.book(t, "2026-03-05", "10:00")

	code, env := hs.do(t, http.MethodPost, "/api/appointments",
		`{"client_name":"Beto","client_phone":"2","service":"Mechas","date":"2026-03-05","time":"10:00"}`)
	if code != http.StatusConflict || env.Success || env.Error == "" {
		t.Fatalf("expected 409 envelope, got %d %+v", code, env)
	}
}

func TestCreateAppointmentValidation(t *testing.T) {
	hs := newHarness(t)
	cases := map[string]string{
		"missing fields": `{"client_name":"Ana"}`,
		"bad date":       `{"client_name":"Ana","client_phone":"1","service":"Mechas","date":"05/03/2026","time":"10:00"}`,
		"impossible day": `{"client_name":"Ana","client_phone":"1","service":"Mechas","date":"2026-02-30","time":"10:00"}`,
		"bad time":       `{"client_name":"Ana","client_phone":"1","service":"Mechas","date":"2026-03-05","time":"10am"}`,
		"not json":       `client_name=Ana`,
	}
	for name, body := range cases {
		code, env := hs.do(t, http.MethodPost, "/api/appointments", body)
		if code != http.StatusBadRequest || env.Success {
			t.Fatalf("%s: expected 400, got %d %+v", name, code, env)
		}
	}
	if len(hs.store.appts) != 0 {
		t.Fatal("validation failures must not write")
	}
}

func TestAvailability(t *testing.T) {
	hs := newHarness(t)
	hs.book(t, "2026-03-05", "10:00")

	code, env := hs.do(t, http.MethodGet, "/api/availability?date=2026-03-05", "")
	if code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	var got calendar.Availability
	if err := json.Unmarshal(env.Data, &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.TotalSlots != 20 || got.AvailableCount != 19 || got.OccupiedCount != 1 {
		t.Fatalf("unexpected counts %+v", got)
	}
	if got.Occupied[0].Time != "10:00" || got.Occupied[0].Service != "Mechas" {
		t.Fatalf("unexpected occupied %+v", got.Occupied)
	}

	// Second call is served from the cache.
	hs.do(t, http.MethodGet, "/api/availability?date=2026-03-05", "")
	if hs.store.dayLoads != 1 {
		t.Fatalf("expected one store load, got %d", hs.store.dayLoads)
	}
}

func TestAvailabilityToday(t *testing.T) {
	hs := newHarness(t)
	_, env := hs.do(t, http.MethodGet, "/api/availability?date=2026-03-04", "")
	var got calendar.Availability
	_ = json.Unmarshal(env.Data, &got)
	if len(got.Available) == 0 || got.Available[0] != "14:30" {
		t.Fatalf("expected first slot 14:30, got %v", got.Available)
	}
}

func TestAvailabilityClosedAndPast(t *testing.T) {
	hs := newHarness(t)
	for _, date := range []string{"2026-03-08", "2026-03-03"} {
		code, env := hs.do(t, http.MethodGet, "/api/availability?date="+date, "")
		if code != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d", date, code)
		}
		var got calendar.Availability
		_ = json.Unmarshal(env.Data, &got)
		if got.Message == "" || len(got.Available) != 0 || len(got.Occupied) != 0 {
			t.Fatalf("%s: expected empty result with message, got %+v", date, got)
		}
	}
	if hs.store.dayLoads != 0 {
		t.Fatalf("closed and past days must not hit the store, got %d loads", hs.store.dayLoads)
	}

	for _, q := range []string{"", "?date=tomorrow"} {
		if code, _ := hs.do(t, http.MethodGet, "/api/availability"+q, ""); code != http.StatusBadRequest {
			t.Fatalf("%q: expected 400, got %d", q, code)
		}
	}
}

func TestUpdateAndCancel(t *testing.T) {
	hs := newHarness(t)
	a := hs.book(t, "2026-03-05", "10:00")
	hs.book(t, "2026-03-05", "11:00")
	path := "/api/appointments/" + itoa(a.ID)

	if code, _ := hs.do(t, http.MethodPut, path, `{"time":"11:00"}`); code != http.StatusConflict {
		t.Fatalf("moving onto a booked slot: expected 409, got %d", code)
	}

	hs.cache.invalidated = nil
	code, env := hs.do(t, http.MethodPut, path, `{"date":"2026-03-06","client_phone":"123"}`)
	if code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", code, env.Error)
	}
	var moved model.Appointment
	_ = json.Unmarshal(env.Data, &moved)
	if moved.Date != "2026-03-06" || moved.ClientPhone != "+123" || moved.DurationMin != 90 {
		t.Fatalf("unexpected update %+v", moved)
	}
	if strings.Join(hs.cache.invalidated, ",") != "2026-03-05,2026-03-06" {
		t.Fatalf("both dates must be invalidated, got %v", hs.cache.invalidated)
	}

	if code, _ := hs.do(t, http.MethodPut, path, `{"status":"pending"}`); code != http.StatusBadRequest {
		t.Fatalf("unknown status: expected 400, got %d", code)
	}
	if code, _ := hs.do(t, http.MethodPut, path, `{"time":""}`); code != http.StatusBadRequest {
		t.Fatalf("blank time: expected 400, got %d", code)
	}

	code, env = hs.do(t, http.MethodDelete, path, "")
	if code != http.StatusOK || !strings.Contains(env.Message, "cancelled") {
		t.Fatalf("cancel: got %d %+v", code, env)
	}
	if code, _ := hs.do(t, http.MethodPut, path, `{"status":"confirmed"}`); code != http.StatusConflict {
		t.Fatalf("restoring a cancelled appointment: expected 409, got %d", code)
	}

	code, env = hs.do(t, http.MethodPut, path, `{}`)
	if code != http.StatusOK {
		t.Fatalf("empty update: expected 200, got %d", code)
	}
	var same model.Appointment
	_ = json.Unmarshal(env.Data, &same)
	if same.Status != model.StatusCancelled {
		t.Fatalf("empty update must return the stored row, got %+v", same)
	}
}

func TestNotFoundAndBadID(t *testing.T) {
	hs := newHarness(t)
	for _, tc := range []struct{ method, path string }{
		{http.MethodGet, "/api/appointments/99"},
		{http.MethodPut, "/api/appointments/99/reminder-sent"},
		{http.MethodDelete, "/api/appointments/99"},
	} {
		if code, _ := hs.do(t, tc.method, tc.path, ""); code != http.StatusNotFound {
			t.Fatalf("%s %s: expected 404, got %d", tc.method, tc.path, code)
		}
	}
	if code, _ := hs.do(t, http.MethodGet, "/api/appointments/abc", ""); code != http.StatusBadRequest {
		t.Fatalf("expected 400 for non-numeric id, got %d", code)
	}
}

func TestPendingReminders(t *testing.T) {
	hs := newHarness(t)
	due := hs.book(t, "2026-03-04", "14:15")
	hs.book(t, "2026-03-04", "14:30")

	_, env := hs.do(t, http.MethodGet, "/api/appointments/pending-reminders", "")
	var got []model.Appointment
	_ = json.Unmarshal(env.Data, &got)
	if len(got) != 1 || got[0].ID != due.ID {
		t.Fatalf("expected only the 14:15 appointment, got %+v", got)
	}

	code, env := hs.do(t, http.MethodPut, "/api/appointments/"+itoa(due.ID)+"/reminder-sent", "")
	if code != http.StatusOK || env.Message == "" {
		t.Fatalf("mark reminder: got %d %+v", code, env)
	}
	_, env = hs.do(t, http.MethodGet, "/api/appointments/pending-reminders", "")
	_ = json.Unmarshal(env.Data, &got)
	if len(got) != 0 {
		t.Fatalf("expected no pending reminders, got %+v", got)
	}
}

func TestListAppointmentsAndClients(t *testing.T) {
	hs := newHarness(t)
	hs.book(t, "2026-03-06", "09:00")
	hs.book(t, "2026-03-05", "09:00")

	_, env := hs.do(t, http.MethodGet, "/api/appointments?phone=5491123456789", "")
	var got []model.Appointment
	_ = json.Unmarshal(env.Data, &got)
	if len(got) != 2 || got[0].Date != "2026-03-05" {
		t.Fatalf("expected both appointments ordered by date, got %+v", got)
	}

	if code, _ := hs.do(t, http.MethodGet, "/api/appointments?status=done", ""); code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown status, got %d", code)
	}

	_, env = hs.do(t, http.MethodGet, "/api/clients", "")
	var clients []model.Client
	_ = json.Unmarshal(env.Data, &clients)
	if len(clients) != 1 || clients[0].Appointments != 2 || clients[0].LastDate != "2026-03-06" {
		t.Fatalf("unexpected roster %+v", clients)
	}
}

func TestServicesAndStoreFailure(t *testing.T) {
	hs := newHarness(t)
	_, env := hs.do(t, http.MethodGet, "/api/services", "")
	var services []model.Service
	_ = json.Unmarshal(env.Data, &services)
	if len(services) != 2 {
		t.Fatalf("unexpected services %+v", services)
	}

	hs.store.err = errors.New("connection reset")
	code, env := hs.do(t, http.MethodGet, "/api/appointments", "")
	if code != http.StatusInternalServerError || env.Error != "connection reset" {
		t.Fatalf("expected 500 exposing the cause, got %d %+v", code, env)
	}
}

func TestHealth(t *testing.T) {
	hs := newHarness(t)
	rw := httptest.NewRecorder()
	hs.mux.ServeHTTP(rw, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	var body map[string]string
	if err := json.Unmarshal(rw.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["status"] != "ok" || body["service"] != "salon-service" || body["timestamp"] != "2026-03-04T14:05:00Z" {
		t.Fatalf("unexpected health %v", body)
	}
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}
