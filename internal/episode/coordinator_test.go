package episode_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skyleedevzero86/Health-mr-sub001/internal/apperr"
	"github.com/skyleedevzero86/Health-mr-sub001/internal/directory"
	"github.com/skyleedevzero86/Health-mr-sub001/internal/domain/checkin"
	"github.com/skyleedevzero86/Health-mr-sub001/internal/domain/event"
	"github.com/skyleedevzero86/Health-mr-sub001/internal/domain/money"
	"github.com/skyleedevzero86/Health-mr-sub001/internal/domain/payment"
	"github.com/skyleedevzero86/Health-mr-sub001/internal/domain/prescription"
	"github.com/skyleedevzero86/Health-mr-sub001/internal/domain/reservation"
	"github.com/skyleedevzero86/Health-mr-sub001/internal/domain/treatment"
	"github.com/skyleedevzero86/Health-mr-sub001/internal/episode"
	"github.com/skyleedevzero86/Health-mr-sub001/internal/infrastructure/memory"
	"github.com/skyleedevzero86/Health-mr-sub001/internal/notification"
)

var (
	start    = time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	visitDay = time.Date(2025, 3, 11, 0, 0, 0, 0, time.UTC)
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}

type metricsRecorder struct {
	mu            sync.Mutex
	orchestration map[string][]string
	notifications map[string][]string
}

func newMetricsRecorder() *metricsRecorder {
	return &metricsRecorder{
		orchestration: map[string][]string{},
		notifications: map[string][]string{},
	}
}

func (m *metricsRecorder) ObserveTransition(string, string, string) {}

func (m *metricsRecorder) ObserveOrchestration(rule, outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orchestration[rule] = append(m.orchestration[rule], outcome)
}

func (m *metricsRecorder) ObserveNotification(template, outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notifications[template] = append(m.notifications[template], outcome)
}

func (m *metricsRecorder) rule(name string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.orchestration[name]...)
}

func (m *metricsRecorder) notification(template string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.notifications[template]...)
}

type fixture struct {
	c        *episode.Coordinator
	clock    *clock
	dir      *directory.Static
	notifier *notification.Recorder
	metrics  *metricsRecorder

	mu     sync.Mutex
	events []*event.Event

	patient    directory.Patient
	silent     directory.Patient
	doctor     directory.Staff
	otherDoc   directory.Staff
	nurse      directory.Staff
	department directory.Department
}

func newFixture(t *testing.T, cfg episode.Config) *fixture {
	t.Helper()
	f := &fixture{
		clock:      &clock{t: start},
		notifier:   &notification.Recorder{},
		metrics:    newMetricsRecorder(),
		patient:    directory.Patient{ID: uuid.New(), Name: "Kim Minji", Email: "minji@example.com"},
		silent:     directory.Patient{ID: uuid.New(), Name: "Park Joon"},
		doctor:     directory.Staff{ID: uuid.New(), Name: "Dr. Lee", Role: directory.RoleDoctor},
		otherDoc:   directory.Staff{ID: uuid.New(), Name: "Dr. Choi", Role: directory.RoleDoctor},
		nurse:      directory.Staff{ID: uuid.New(), Name: "Nurse Han", Role: directory.RoleNurse},
		department: directory.Department{ID: uuid.New(), Name: "Internal Medicine"},
	}
	f.dir = directory.NewStatic().
		AddPatient(f.patient).
		AddPatient(f.silent).
		AddStaff(f.doctor).
		AddStaff(f.otherDoc).
		AddStaff(f.nurse).
		AddDepartment(f.department).
		SetDefaults(f.department.ID, f.doctor.ID)

	store := memory.NewStore(event.PublisherFunc(func(_ context.Context, e *event.Event) error {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.events = append(f.events, e)
		return nil
	}), nil)

	f.c = episode.New(store, f.dir, f.notifier, cfg, nil,
		episode.WithClock(f.clock.Now),
		episode.WithMetrics(f.metrics))
	return f
}

func (f *fixture) published(et event.Type) []*event.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*event.Event
	for _, e := range f.events {
		if e.EventType == et {
			out = append(out, e)
		}
	}
	return out
}

func (f *fixture) reserve(t *testing.T, patientID uuid.UUID, at time.Time) *reservation.Reservation {
	t.Helper()
	r, err := f.c.CreateReservation(context.Background(), episode.NewReservation{PatientID: patientID, ScheduledAt: at})
	require.NoError(t, err)
	return r
}

// completedTreatment walks a walk-in patient through check-in to a
// completed treatment
func (f *fixture) completedTreatment(t *testing.T) *treatment.Treatment {
	t.Helper()
	ctx := context.Background()
	ci, err := f.c.CreateCheckIn(ctx, episode.NewCheckIn{PatientID: f.patient.ID})
	require.NoError(t, err)
	_, err = f.c.CompleteCheckIn(ctx, ci.ID())
	require.NoError(t, err)
	tr, err := f.c.CreateTreatmentFromCheckIn(ctx, ci.ID())
	require.NoError(t, err)
	tr, err = f.c.CompleteTreatment(ctx, tr.ID(), "")
	require.NoError(t, err)
	return tr
}

func TestScenarioTreatmentCompletionCompletesReservation(t *testing.T) {
	f := newFixture(t, episode.DefaultConfig())
	ctx := context.Background()
	r := f.reserve(t, f.patient.ID, visitDay.Add(10*time.Hour))

	f.clock.Set(visitDay.Add(9*time.Hour + 30*time.Minute))
	ci, err := f.c.CreateCheckIn(ctx, episode.NewCheckIn{PatientID: f.patient.ID, StaffID: &f.nurse.ID})
	require.NoError(t, err)
	_, err = f.c.CompleteCheckIn(ctx, ci.ID())
	require.NoError(t, err)

	tr, err := f.c.CreateTreatmentFromCheckIn(ctx, ci.ID())
	require.NoError(t, err)
	_, err = f.c.StartTreatment(ctx, tr.ID())
	require.NoError(t, err)
	tr, err = f.c.CompleteTreatment(ctx, tr.ID(), "rest and fluids")
	require.NoError(t, err)
	assert.Equal(t, treatment.StatusCompleted, tr.Status())

	got, err := f.c.GetReservation(ctx, r.ID())
	require.NoError(t, err)
	assert.Equal(t, reservation.StatusCompleted, got.Status())
	assert.Equal(t, []string{"completed"}, f.metrics.rule(episode.RuleAutoCompleteReservation))
	assert.Len(t, f.published(reservation.EventReservationCompleted), 1)

	// The reservation rule does not create a second check-in.
	assert.Empty(t, f.metrics.rule(episode.RuleAutoCreateCheckIn))
	assert.Len(t, f.published(checkin.EventCheckInCreated), 1)
}

func TestTreatmentCompletionWithoutMatchingReservation(t *testing.T) {
	f := newFixture(t, episode.DefaultConfig())
	tr := f.completedTreatment(t)

	assert.Equal(t, treatment.StatusCompleted, tr.Status())
	assert.Equal(t, []string{"no_match"}, f.metrics.rule(episode.RuleAutoCompleteReservation))
}

func TestTreatmentCompletionSkipsCompletedReservation(t *testing.T) {
	f := newFixture(t, episode.DefaultConfig())
	ctx := context.Background()
	r := f.reserve(t, f.patient.ID, visitDay.Add(10*time.Hour))

	_, err := f.c.CompleteReservation(ctx, r.ID())
	require.NoError(t, err)
	_, err = f.c.FindReservationByCheckIn(ctx, uuid.New())
	assert.ErrorIs(t, err, apperr.NotFound)

	checkIns := f.published(checkin.EventCheckInCreated)
	require.Len(t, checkIns, 1)
	checkInID := uuid.MustParse(checkIns[0].AggregateID)
	_, err = f.c.CompleteCheckIn(ctx, checkInID)
	require.NoError(t, err)

	tr, err := f.c.CreateTreatmentFromCheckIn(ctx, checkInID)
	require.NoError(t, err)
	_, err = f.c.CompleteTreatment(ctx, tr.ID(), "")
	require.NoError(t, err)

	assert.Equal(t, []string{"already_completed"}, f.metrics.rule(episode.RuleAutoCompleteReservation))
	assert.Len(t, f.published(reservation.EventReservationCompleted), 1)
}

func TestTreatmentCompletionWithRuleDisabled(t *testing.T) {
	cfg := episode.DefaultConfig()
	cfg.AutoCompleteReservation = false
	f := newFixture(t, cfg)
	ctx := context.Background()
	r := f.reserve(t, f.patient.ID, visitDay.Add(10*time.Hour))

	f.clock.Set(visitDay.Add(9 * time.Hour))
	f.completedTreatment(t)

	got, err := f.c.GetReservation(ctx, r.ID())
	require.NoError(t, err)
	assert.Equal(t, reservation.StatusPending, got.Status())
	assert.Empty(t, f.metrics.rule(episode.RuleAutoCompleteReservation))
}

func TestCompleteReservationCreatesCheckInOnce(t *testing.T) {
	f := newFixture(t, episode.DefaultConfig())
	ctx := context.Background()
	morning := f.reserve(t, f.patient.ID, visitDay.Add(9*time.Hour))
	afternoon := f.reserve(t, f.patient.ID, visitDay.Add(15*time.Hour))

	_, err := f.c.CompleteReservation(ctx, morning.ID())
	require.NoError(t, err)
	_, err = f.c.CompleteReservation(ctx, afternoon.ID())
	require.NoError(t, err)

	assert.Equal(t, []string{"created", "exists"}, f.metrics.rule(episode.RuleAutoCreateCheckIn))
	created := f.published(checkin.EventCheckInCreated)
	require.Len(t, created, 1)

	ci, err := f.c.CreateCheckInFromReservation(ctx, afternoon.ID())
	require.NoError(t, err)
	assert.Equal(t, created[0].AggregateID, ci.ID().String())
	require.NotNil(t, ci.ReservationID())
	assert.Equal(t, morning.ID(), *ci.ReservationID())
	assert.True(t, ci.CheckInAt().Equal(morning.ScheduledAt()))

	found, err := f.c.FindReservationByCheckIn(ctx, ci.ID())
	require.NoError(t, err)
	assert.Equal(t, morning.ID(), found.ID())
}

func TestCompleteReservationWithCheckInRuleDisabled(t *testing.T) {
	cfg := episode.DefaultConfig()
	cfg.AutoCreateCheckIn = false
	f := newFixture(t, cfg)
	ctx := context.Background()
	r := f.reserve(t, f.patient.ID, visitDay.Add(9*time.Hour))

	got, err := f.c.CompleteReservation(ctx, r.ID())
	require.NoError(t, err)
	assert.Equal(t, reservation.StatusCompleted, got.Status())
	assert.Empty(t, f.published(checkin.EventCheckInCreated))
	assert.Empty(t, f.metrics.rule(episode.RuleAutoCreateCheckIn))

	ci, err := f.c.CreateCheckInFromReservation(ctx, r.ID())
	require.NoError(t, err)
	assert.Equal(t, checkin.StatusPending, ci.Status())
}

var errCommitFailed = errors.New("commit failed")

// commitFailingStore rolls back every unit whose work succeeded while fail
// is set, as a commit error would
type commitFailingStore struct {
	episode.Store
	fail bool
}

func (s *commitFailingStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx episode.Tx) error) error {
	if !s.fail {
		return s.Store.WithinTx(ctx, fn)
	}
	return s.Store.WithinTx(ctx, func(ctx context.Context, tx episode.Tx) error {
		if err := fn(ctx, tx); err != nil {
			return err
		}
		return errCommitFailed
	})
}

func TestRuleOutcomesCountOnlyAfterCommit(t *testing.T) {
	f := newFixture(t, episode.DefaultConfig())
	ctx := context.Background()
	store := &commitFailingStore{Store: memory.NewStore(nil, nil)}
	metrics := newMetricsRecorder()
	c := episode.New(store, f.dir, nil, episode.DefaultConfig(), nil,
		episode.WithClock(f.clock.Now),
		episode.WithMetrics(metrics))

	r, err := c.CreateReservation(ctx, episode.NewReservation{PatientID: f.patient.ID, ScheduledAt: visitDay.Add(9 * time.Hour)})
	require.NoError(t, err)
	walkIn, err := c.CreateCheckIn(ctx, episode.NewCheckIn{PatientID: f.silent.ID})
	require.NoError(t, err)

	store.fail = true
	_, err = c.CompleteReservation(ctx, r.ID())
	require.ErrorIs(t, err, errCommitFailed)
	_, err = c.CompleteCheckIn(ctx, walkIn.ID())
	require.ErrorIs(t, err, errCommitFailed)
	assert.Empty(t, metrics.rule(episode.RuleAutoCreateCheckIn))
	assert.Empty(t, metrics.rule(episode.RuleAutoCreateTreatment))

	store.fail = false
	got, err := c.GetReservation(ctx, r.ID())
	require.NoError(t, err)
	assert.Equal(t, reservation.StatusPending, got.Status())

	_, err = c.CompleteReservation(ctx, r.ID())
	require.NoError(t, err)
	_, err = c.CompleteCheckIn(ctx, walkIn.ID())
	require.NoError(t, err)
	assert.Equal(t, []string{"created"}, metrics.rule(episode.RuleAutoCreateCheckIn))
	assert.Equal(t, []string{"created"}, metrics.rule(episode.RuleAutoCreateTreatment))
}

func TestCreateCheckInFromCancelledReservation(t *testing.T) {
	f := newFixture(t, episode.DefaultConfig())
	ctx := context.Background()
	r := f.reserve(t, f.patient.ID, visitDay.Add(9*time.Hour))
	_, err := f.c.CancelReservation(ctx, r.ID(), "")
	require.NoError(t, err)

	_, err = f.c.CreateCheckInFromReservation(ctx, r.ID())
	assert.ErrorIs(t, err, apperr.InvalidState)
}

func TestCompleteReservationByCheckIn(t *testing.T) {
	f := newFixture(t, episode.DefaultConfig())
	ctx := context.Background()
	r := f.reserve(t, f.patient.ID, visitDay.Add(11*time.Hour))

	f.clock.Set(visitDay.Add(8 * time.Hour))
	ci, err := f.c.CreateCheckIn(ctx, episode.NewCheckIn{PatientID: f.patient.ID})
	require.NoError(t, err)

	got, err := f.c.CompleteReservationByCheckIn(ctx, ci.ID())
	require.NoError(t, err)
	assert.Equal(t, r.ID(), got.ID())
	assert.Equal(t, reservation.StatusCompleted, got.Status())

	// A completed reservation no longer matches by patient and date.
	_, err = f.c.CompleteReservationByCheckIn(ctx, ci.ID())
	assert.ErrorIs(t, err, apperr.NotFound)

	f.clock.Set(visitDay.AddDate(0, 0, 3))
	other, err := f.c.CreateCheckIn(ctx, episode.NewCheckIn{PatientID: f.patient.ID})
	require.NoError(t, err)
	_, err = f.c.CompleteReservationByCheckIn(ctx, other.ID())
	assert.ErrorIs(t, err, apperr.NotFound)
}

func TestCancelledLinkFallsBackToSameDayReservation(t *testing.T) {
	f := newFixture(t, episode.DefaultConfig())
	ctx := context.Background()
	first := f.reserve(t, f.patient.ID, visitDay.Add(9*time.Hour))

	ci, err := f.c.CreateCheckInFromReservation(ctx, first.ID())
	require.NoError(t, err)
	require.NotNil(t, ci.ReservationID())
	_, err = f.c.CancelReservation(ctx, first.ID(), "rebooked")
	require.NoError(t, err)
	second := f.reserve(t, f.patient.ID, visitDay.Add(14*time.Hour))

	found, err := f.c.FindReservationByCheckIn(ctx, ci.ID())
	require.NoError(t, err)
	assert.Equal(t, second.ID(), found.ID())

	f.clock.Set(visitDay.Add(14 * time.Hour))
	_, err = f.c.CompleteCheckIn(ctx, ci.ID())
	require.NoError(t, err)
	tr, err := f.c.CreateTreatmentFromCheckIn(ctx, ci.ID())
	require.NoError(t, err)
	_, err = f.c.CompleteTreatment(ctx, tr.ID(), "")
	require.NoError(t, err)

	got, err := f.c.GetReservation(ctx, second.ID())
	require.NoError(t, err)
	assert.Equal(t, reservation.StatusCompleted, got.Status())
	cancelled, err := f.c.GetReservation(ctx, first.ID())
	require.NoError(t, err)
	assert.Equal(t, reservation.StatusCancelled, cancelled.Status())
	assert.Equal(t, []string{"completed"}, f.metrics.rule(episode.RuleAutoCompleteReservation))

	// Once completed, an unlinked reservation no longer matches by date.
	found, err = f.c.FindReservationByCheckIn(ctx, ci.ID())
	require.ErrorIs(t, err, apperr.NotFound)
	assert.Nil(t, found)
}

func TestCompleteCheckInCreatesTreatmentWithDefaults(t *testing.T) {
	f := newFixture(t, episode.DefaultConfig())
	ctx := context.Background()

	tests := []struct {
		name   string
		staff  *uuid.UUID
		doctor uuid.UUID
	}{
		{"no staff", nil, f.doctor.ID},
		{"nurse at desk", &f.nurse.ID, f.doctor.ID},
		{"doctor at desk", &f.otherDoc.ID, f.otherDoc.ID},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ci, err := f.c.CreateCheckIn(ctx, episode.NewCheckIn{PatientID: f.patient.ID, StaffID: tt.staff})
			require.NoError(t, err)
			_, err = f.c.CompleteCheckIn(ctx, ci.ID())
			require.NoError(t, err)

			tr, err := f.c.HandleCheckInCompleted(ctx, ci.ID())
			require.NoError(t, err)
			require.NotNil(t, tr)
			assert.Equal(t, tt.doctor, tr.StaffID())
			assert.Equal(t, treatment.CategoryOutpatient, tr.Category())
			require.NotNil(t, tr.DepartmentID())
			assert.Equal(t, f.department.ID, *tr.DepartmentID())
			require.NotNil(t, tr.CheckInID())
			assert.Equal(t, ci.ID(), *tr.CheckInID())

			again, err := f.c.CreateTreatmentFromCheckIn(ctx, ci.ID())
			require.NoError(t, err)
			assert.Equal(t, tr.ID(), again.ID())
		})
	}
	assert.Equal(t, []string{"created", "exists", "created", "exists", "created", "exists"},
		f.metrics.rule(episode.RuleAutoCreateTreatment))
}

func TestTreatmentRuleFailureLeavesCheckInCompleted(t *testing.T) {
	f := newFixture(t, episode.DefaultConfig())
	f.dir.SetDefaults(f.department.ID, f.nurse.ID)
	ctx := context.Background()

	ci, err := f.c.CreateCheckIn(ctx, episode.NewCheckIn{PatientID: f.patient.ID})
	require.NoError(t, err)
	got, err := f.c.CompleteCheckIn(ctx, ci.ID())
	require.NoError(t, err)
	assert.Equal(t, checkin.StatusCompleted, got.Status())

	assert.Equal(t, []string{"failed"}, f.metrics.rule(episode.RuleAutoCreateTreatment))
	assert.Empty(t, f.published(treatment.EventTreatmentCreated))
	assert.Len(t, f.published(checkin.EventCheckInCompleted), 1)

	_, err = f.c.HandleCheckInCompleted(ctx, ci.ID())
	assert.ErrorIs(t, err, apperr.InvalidState)
}

func TestTreatmentRuleDisabled(t *testing.T) {
	cfg := episode.DefaultConfig()
	cfg.AutoCreateTreatmentOnCheckIn = false
	f := newFixture(t, cfg)
	ctx := context.Background()

	ci, err := f.c.CreateCheckIn(ctx, episode.NewCheckIn{PatientID: f.patient.ID})
	require.NoError(t, err)
	_, err = f.c.CompleteCheckIn(ctx, ci.ID())
	require.NoError(t, err)
	assert.Empty(t, f.published(treatment.EventTreatmentCreated))

	tr, err := f.c.HandleCheckInCompleted(ctx, ci.ID())
	require.NoError(t, err)
	assert.Nil(t, tr)
}

func TestCreateTreatment(t *testing.T) {
	f := newFixture(t, episode.DefaultConfig())
	ctx := context.Background()

	pending, err := f.c.CreateCheckIn(ctx, episode.NewCheckIn{PatientID: f.patient.ID})
	require.NoError(t, err)
	_, err = f.c.CreateTreatment(ctx, episode.NewTreatment{
		CheckInID: ptr(pending.ID()),
		StaffID:   f.doctor.ID,
		Category:  "outpatient",
	})
	assert.ErrorIs(t, err, apperr.InvalidState)

	_, err = f.c.CreateTreatment(ctx, episode.NewTreatment{StaffID: f.doctor.ID, Category: "EMERGENCY"})
	assert.ErrorIs(t, err, apperr.Validation)

	_, err = f.c.CreateTreatment(ctx, episode.NewTreatment{PatientID: f.patient.ID, StaffID: f.doctor.ID, Category: "DENTAL"})
	assert.ErrorIs(t, err, apperr.Validation)

	tr, err := f.c.CreateTreatment(ctx, episode.NewTreatment{
		PatientID:    f.patient.ID,
		StaffID:      f.doctor.ID,
		Category:     "EMERGENCY",
		DepartmentID: &f.department.ID,
	})
	require.NoError(t, err)
	assert.Equal(t, treatment.StatusPending, tr.Status())
	assert.Equal(t, treatment.CategoryEmergency, tr.Detail().Category)
	assert.NotNil(t, tr.Detail().Emergency)

	note := "follow-up in a week"
	tr, err = f.c.UpdateTreatment(ctx, tr.ID(), treatment.Edit{Note: &note, StaffID: &f.otherDoc.ID})
	require.NoError(t, err)
	assert.Equal(t, note, tr.Note())
	assert.Equal(t, f.otherDoc.ID, tr.StaffID())

	_, err = f.c.CancelTreatment(ctx, tr.ID(), "")
	require.NoError(t, err)
	_, err = f.c.StartTreatment(ctx, tr.ID())
	assert.ErrorIs(t, err, apperr.InvalidTransition)

	list, err := f.c.ListTreatmentsByPatient(ctx, f.patient.ID)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestCreateTreatmentRejectsSecondForCheckIn(t *testing.T) {
	f := newFixture(t, episode.DefaultConfig())
	ctx := context.Background()
	ci, err := f.c.CreateCheckIn(ctx, episode.NewCheckIn{PatientID: f.patient.ID})
	require.NoError(t, err)
	_, err = f.c.CompleteCheckIn(ctx, ci.ID())
	require.NoError(t, err)

	_, err = f.c.CreateTreatment(ctx, episode.NewTreatment{CheckInID: ptr(ci.ID()), StaffID: f.doctor.ID, Category: "OUTPATIENT"})
	assert.ErrorIs(t, err, apperr.InvalidState)
}

func TestDuplicateReservation(t *testing.T) {
	f := newFixture(t, episode.DefaultConfig())
	ctx := context.Background()
	at := visitDay.Add(10 * time.Hour)
	first := f.reserve(t, f.patient.ID, at)

	_, err := f.c.CreateReservation(ctx, episode.NewReservation{PatientID: f.patient.ID, ScheduledAt: at})
	assert.ErrorIs(t, err, apperr.DuplicateReservation)

	other := f.reserve(t, f.patient.ID, at.Add(time.Hour))
	_, err = f.c.RescheduleReservation(ctx, other.ID(), at, "")
	assert.ErrorIs(t, err, apperr.DuplicateReservation)

	_, err = f.c.RescheduleReservation(ctx, first.ID(), at, "same slot")
	require.NoError(t, err)

	_, err = f.c.CancelReservation(ctx, first.ID(), "")
	require.NoError(t, err)
	_, err = f.c.CreateReservation(ctx, episode.NewReservation{PatientID: f.patient.ID, ScheduledAt: at})
	require.NoError(t, err)

	_, err = f.c.CreateReservation(ctx, episode.NewReservation{PatientID: uuid.New(), ScheduledAt: at})
	assert.ErrorIs(t, err, apperr.NotFound)

	_, err = f.c.CreateReservation(ctx, episode.NewReservation{PatientID: f.patient.ID, ScheduledAt: start})
	assert.ErrorIs(t, err, apperr.InvalidSchedule)

	list, err := f.c.ListReservationsByPatient(ctx, f.patient.ID)
	require.NoError(t, err)
	assert.Len(t, list, 3)
}

func TestNotificationsAfterCommit(t *testing.T) {
	f := newFixture(t, episode.DefaultConfig())
	ctx := context.Background()

	r := f.reserve(t, f.patient.ID, visitDay.Add(10*time.Hour))
	sent := f.notifier.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, f.patient.Email, sent[0].Recipient)
	assert.Equal(t, notification.TemplateReservationRegistered, sent[0].TemplateID)
	assert.Equal(t, f.patient.Name, sent[0].Data["patient_name"])
	assert.Equal(t, r.ID().String(), sent[0].Data["reservation_id"])
	assert.Equal(t, "2025-03-11 10:00", sent[0].Data["scheduled_at"])

	f.reserve(t, f.silent.ID, visitDay.Add(10*time.Hour))
	assert.Len(t, f.notifier.Sent(), 1)
	assert.Equal(t, []string{"sent", "skipped"}, f.metrics.notification(notification.TemplateReservationRegistered))

	_, err := f.c.CreateReservation(ctx, episode.NewReservation{PatientID: f.patient.ID, ScheduledAt: r.ScheduledAt()})
	require.Error(t, err)
	assert.Len(t, f.notifier.Sent(), 1)

	_, err = f.c.CancelReservation(ctx, r.ID(), "doctor unavailable")
	require.NoError(t, err)
	sent = f.notifier.Sent()
	require.Len(t, sent, 2)
	assert.Equal(t, notification.TemplateReservationCancelled, sent[1].TemplateID)
	assert.Equal(t, "doctor unavailable", sent[1].Data["reason"])
}

func TestNotificationFailureDoesNotFailOperation(t *testing.T) {
	f := newFixture(t, episode.DefaultConfig())
	f.notifier.Err = errors.New("smtp down")

	r := f.reserve(t, f.patient.ID, visitDay.Add(10*time.Hour))
	assert.Equal(t, reservation.StatusPending, r.Status())
	assert.Equal(t, []string{"failed"}, f.metrics.notification(notification.TemplateReservationRegistered))
}

func TestPrescriptionLifecycle(t *testing.T) {
	f := newFixture(t, episode.DefaultConfig())
	ctx := context.Background()
	tr := f.completedTreatment(t)

	_, err := f.c.CreatePrescription(ctx, episode.NewPrescription{
		TreatmentID: uuid.New(), PatientID: f.patient.ID, StaffID: f.doctor.ID, Type: "OUTPATIENT",
	})
	assert.ErrorIs(t, err, apperr.NotFound)

	_, err = f.c.CreatePrescription(ctx, episode.NewPrescription{
		TreatmentID: tr.ID(), PatientID: f.patient.ID, StaffID: f.doctor.ID,
	})
	assert.ErrorIs(t, err, apperr.Validation)

	_, err = f.c.CreatePrescription(ctx, episode.NewPrescription{
		TreatmentID: tr.ID(), PatientID: f.silent.ID, StaffID: f.doctor.ID, Type: "OUTPATIENT",
	})
	assert.ErrorIs(t, err, apperr.Validation)

	p, err := f.c.CreatePrescription(ctx, episode.NewPrescription{
		TreatmentID: tr.ID(), PatientID: f.patient.ID, StaffID: f.doctor.ID, Type: "OUTPATIENT",
	})
	require.NoError(t, err)

	_, err = f.c.CreatePrescription(ctx, episode.NewPrescription{
		TreatmentID: tr.ID(), PatientID: f.patient.ID, StaffID: f.doctor.ID, Type: "OUTPATIENT",
	})
	assert.ErrorIs(t, err, apperr.InvalidState)

	_, err = f.c.Prescribe(ctx, p.ID())
	assert.ErrorIs(t, err, apperr.EmptyPrescription)

	p, err = f.c.AddPrescriptionItem(ctx, p.ID(), prescription.ItemSpec{
		DrugCode: "A01", DrugName: "Amoxicillin", Frequency: 3, Days: 5,
	})
	require.NoError(t, err)
	require.Len(t, p.Items(), 1)
	assert.Equal(t, 15, p.Items()[0].TotalQuantity)

	days := 7
	p, err = f.c.UpdatePrescriptionItem(ctx, p.ID(), p.Items()[0].ID, prescription.ItemUpdate{Days: &days})
	require.NoError(t, err)
	assert.Equal(t, 21, p.Items()[0].TotalQuantity)

	_, err = f.c.Prescribe(ctx, p.ID())
	require.NoError(t, err)
	p, err = f.c.DispensePrescription(ctx, p.ID())
	require.NoError(t, err)
	assert.Equal(t, prescription.StatusDispensed, p.Status())

	_, err = f.c.CancelPrescription(ctx, p.ID(), "changed mind")
	assert.ErrorIs(t, err, apperr.InvalidTransition)

	byTreatment, err := f.c.GetPrescriptionByTreatment(ctx, tr.ID())
	require.NoError(t, err)
	assert.Equal(t, p.ID(), byTreatment.ID())
}

func TestPrescriptionOnCancelledTreatment(t *testing.T) {
	f := newFixture(t, episode.DefaultConfig())
	ctx := context.Background()
	tr, err := f.c.CreateTreatment(ctx, episode.NewTreatment{PatientID: f.patient.ID, StaffID: f.doctor.ID, Category: "OUTPATIENT"})
	require.NoError(t, err)
	_, err = f.c.CancelTreatment(ctx, tr.ID(), "")
	require.NoError(t, err)

	_, err = f.c.CreatePrescription(ctx, episode.NewPrescription{
		TreatmentID: tr.ID(), PatientID: f.patient.ID, StaffID: f.doctor.ID, Type: "OUTPATIENT",
	})
	assert.ErrorIs(t, err, apperr.InvalidState)
}

func TestPaymentLifecycle(t *testing.T) {
	f := newFixture(t, episode.DefaultConfig())
	ctx := context.Background()

	open, err := f.c.CreateTreatment(ctx, episode.NewTreatment{PatientID: f.patient.ID, StaffID: f.doctor.ID, Category: "OUTPATIENT"})
	require.NoError(t, err)
	amounts := payment.Amounts{Total: money.MustOf(10000), SelfPay: money.MustOf(3000), Insurance: money.MustOf(7000)}
	_, err = f.c.CreatePayment(ctx, open.ID(), amounts)
	assert.ErrorIs(t, err, apperr.InvalidState)

	tr := f.completedTreatment(t)
	_, err = f.c.CreatePayment(ctx, tr.ID(), payment.Amounts{Total: money.MustOf(10000), SelfPay: money.MustOf(3000), Insurance: money.MustOf(6000)})
	assert.ErrorIs(t, err, apperr.AmountMismatch)

	p, err := f.c.CreatePayment(ctx, tr.ID(), amounts)
	require.NoError(t, err)
	require.NotNil(t, p.PatientID())
	assert.Equal(t, f.patient.ID, *p.PatientID())

	_, err = f.c.CreatePayment(ctx, tr.ID(), amounts)
	assert.ErrorIs(t, err, apperr.InvalidState)

	p, err = f.c.PartialPay(ctx, p.ID(), money.MustOf(4000))
	require.NoError(t, err)
	assert.Equal(t, payment.StatusPartial, p.Status())
	assert.Equal(t, int64(6000), p.Remain().Amount())

	_, err = f.c.PartialPay(ctx, p.ID(), money.MustOf(6000))
	assert.ErrorIs(t, err, apperr.ExceedsRemaining)

	p, err = f.c.CompletePayment(ctx, p.ID(), payment.Receipt{Method: payment.MethodCard, ApprovalNumber: "AP-77", CardCompany: "Shinhan"})
	require.NoError(t, err)
	assert.Equal(t, payment.StatusPaid, p.Status())

	p, err = f.c.RefundPayment(ctx, p.ID(), money.MustOf(2000), "")
	require.NoError(t, err)
	assert.Equal(t, payment.StatusRefunded, p.Status())
	assert.Equal(t, int64(8000), p.Current().Amount())
	assert.Equal(t, int64(2000), p.Remain().Amount())

	var templates []string
	for _, s := range f.notifier.Sent() {
		templates = append(templates, s.TemplateID)
	}
	assert.Contains(t, templates, notification.TemplatePaymentCompleted)
	assert.Contains(t, templates, notification.TemplatePaymentRefunded)
	last := f.notifier.Sent()[len(f.notifier.Sent())-1]
	assert.Equal(t, "2,000원", last.Data["amount"])
	assert.Equal(t, string(payment.MethodCard), last.Data["method"])

	byTreatment, err := f.c.GetPaymentByTreatment(ctx, tr.ID())
	require.NoError(t, err)
	assert.Equal(t, p.ID(), byTreatment.ID())
}

func TestCreatePaymentFromQuote(t *testing.T) {
	f := newFixture(t, episode.DefaultConfig())
	ctx := context.Background()
	tr := f.completedTreatment(t)

	p, q, err := f.c.CreatePaymentFromQuote(ctx, tr.ID(), money.MustOf(50000), payment.CoverageInsuranceClinic, decimal.NewFromInt(10))
	require.NoError(t, err)
	assert.Equal(t, int64(15000*9/10), q.SelfPay.Amount())
	assert.Equal(t, int64(35000), q.Insurance.Amount())
	assert.True(t, p.Total().Equal(q.Total))
	assert.Equal(t, payment.StatusUnpaid, p.Status())
}

func ptr[T any](v T) *T { return &v }
