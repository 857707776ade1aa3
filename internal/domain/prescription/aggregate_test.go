package prescription

import (
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skyleedevzero86/Health-mr-sub001/internal/apperr"
)

var now = time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

func amoxicillin(t *testing.T) *Item {
	t.Helper()
	it, err := NewItem(uuid.New(), ItemSpec{
		DrugCode:  "AMX500",
		DrugName:  "Amoxicillin 500mg",
		Dose:      "1 tablet",
		Frequency: 3,
		Days:      5,
		Unit:      "tab",
	})
	require.NoError(t, err)
	return it
}

func order(items ...*Item) Order {
	return Order{
		TreatmentID: uuid.New(),
		PatientID:   uuid.New(),
		StaffID:     uuid.New(),
		Type:        TypeOutpatient,
		Items:       items,
	}
}

func withStatus(t *testing.T, status Status) *Aggregate {
	t.Helper()
	a, err := New(uuid.New(), order(amoxicillin(t)), now)
	require.NoError(t, err)
	s := a.State()
	s.Status = status
	return Restore(s)
}

func TestNewItemDerivesTotal(t *testing.T) {
	it := amoxicillin(t)
	assert.Equal(t, 15, it.TotalQuantity)

	explicit, err := NewItem(uuid.New(), ItemSpec{DrugCode: "X", DrugName: "X", Frequency: 2, Days: 3, TotalQuantity: 4})
	require.NoError(t, err)
	assert.Equal(t, 4, explicit.TotalQuantity)
}

func TestNewItemValidation(t *testing.T) {
	base := ItemSpec{DrugCode: "X", DrugName: "X", Frequency: 1, Days: 1}
	tests := []struct {
		name   string
		mutate func(s *ItemSpec)
	}{
		{"missing code", func(s *ItemSpec) { s.DrugCode = " " }},
		{"missing name", func(s *ItemSpec) { s.DrugName = "" }},
		{"long code", func(s *ItemSpec) { s.DrugCode = strings.Repeat("a", MaxDrugCodeLen+1) }},
		{"long name", func(s *ItemSpec) { s.DrugName = strings.Repeat("약", MaxDrugNameLen+1) }},
		{"long unit", func(s *ItemSpec) { s.Unit = strings.Repeat("u", MaxUnitLen+1) }},
		{"frequency zero", func(s *ItemSpec) { s.Frequency = 0 }},
		{"frequency too high", func(s *ItemSpec) { s.Frequency = MaxFrequency + 1 }},
		{"days zero", func(s *ItemSpec) { s.Days = 0 }},
		{"days too high", func(s *ItemSpec) { s.Days = MaxDays + 1 }},
		{"negative total", func(s *ItemSpec) { s.TotalQuantity = -1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := base
			tt.mutate(&s)
			_, err := NewItem(uuid.New(), s)
			assert.ErrorIs(t, err, apperr.Validation)
		})
	}

	s := base
	s.DrugName = strings.Repeat("약", MaxDrugNameLen)
	_, err := NewItem(uuid.New(), s)
	assert.NoError(t, err)
}

func TestItemUpdateInfo(t *testing.T) {
	it := amoxicillin(t)
	freq := 2
	blank := "  "
	note := "after meals"

	require.NoError(t, it.UpdateInfo(ItemUpdate{Frequency: &freq, Dose: &blank, Note: &note}))
	assert.Equal(t, 2, it.Frequency)
	assert.Equal(t, 10, it.TotalQuantity)
	assert.Equal(t, "1 tablet", it.Dose)
	assert.Equal(t, "after meals", it.Note)

	bad := 400
	before := *it
	assert.ErrorIs(t, it.UpdateInfo(ItemUpdate{Days: &bad}), apperr.Validation)
	assert.Equal(t, before, *it)
}

func TestNewValidation(t *testing.T) {
	o := order()
	o.TreatmentID = uuid.Nil
	_, err := New(uuid.New(), o, now)
	assert.ErrorIs(t, err, apperr.Validation)

	o = order()
	o.Type = ""
	_, err = New(uuid.New(), o, now)
	assert.ErrorIs(t, err, apperr.Validation)

	o = order()
	o.Items = []*Item{nil}
	_, err = New(uuid.New(), o, now)
	assert.ErrorIs(t, err, apperr.Validation)
}

func TestPrescribeRequiresItems(t *testing.T) {
	a, err := New(uuid.New(), order(), now)
	require.NoError(t, err)

	assert.ErrorIs(t, a.Prescribe(now), apperr.EmptyPrescription)
	assert.Equal(t, StatusPending, a.Status())

	item := amoxicillin(t)
	require.NoError(t, a.AddItem(item, now))
	require.NoError(t, a.Prescribe(now))
	assert.Equal(t, StatusPrescribed, a.Status())

	assert.ErrorIs(t, a.AddItem(amoxicillin(t), now), apperr.InvalidTransition)
	assert.ErrorIs(t, a.RemoveItem(item.ID, now), apperr.InvalidTransition)
	assert.Len(t, a.Items(), 1)
}

func TestDispenseThenCancelRejected(t *testing.T) {
	a := withStatus(t, StatusPrescribed)
	require.NoError(t, a.Dispense(now))
	assert.Equal(t, StatusDispensed, a.Status())

	err := a.Cancel("patient request", now)
	assert.ErrorIs(t, err, apperr.InvalidTransition)
	assert.Equal(t, StatusDispensed, a.Status())
}

func TestTransitionClosure(t *testing.T) {
	ops := map[string]func(a *Aggregate) error{
		"prescribe": func(a *Aggregate) error { return a.Prescribe(now) },
		"dispense":  func(a *Aggregate) error { return a.Dispense(now) },
		"cancel":    func(a *Aggregate) error { return a.Cancel("", now) },
		"update":    func(a *Aggregate) error { return a.Update("memo", nil, now) },
	}

	allowed := map[Status]map[string]bool{
		StatusPending:    {"prescribe": true, "cancel": true, "update": true},
		StatusPrescribed: {"dispense": true, "cancel": true},
		StatusDispensed:  {},
		StatusCancelled:  {},
	}

	for status, ok := range allowed {
		for op, fn := range ops {
			t.Run(string(status)+"/"+op, func(t *testing.T) {
				a := withStatus(t, status)
				before := a.State()

				err := fn(a)
				if ok[op] {
					assert.NoError(t, err)
					return
				}
				assert.ErrorIs(t, err, apperr.InvalidTransition)
				assert.Equal(t, before, a.State())
				assert.Empty(t, a.Changes())
			})
		}
	}
}

func TestRemoveAndUpdateItem(t *testing.T) {
	first, second := amoxicillin(t), amoxicillin(t)
	a, err := New(uuid.New(), order(first, second), now)
	require.NoError(t, err)

	days := 7
	require.NoError(t, a.UpdateItem(second.ID, ItemUpdate{Days: &days}, now))
	assert.Equal(t, 21, a.Items()[1].TotalQuantity)

	require.NoError(t, a.RemoveItem(first.ID, now))
	items := a.Items()
	require.Len(t, items, 1)
	assert.Equal(t, second.ID, items[0].ID)

	assert.ErrorIs(t, a.RemoveItem(uuid.New(), now), apperr.NotFound)
	assert.ErrorIs(t, a.UpdateItem(uuid.New(), ItemUpdate{}, now), apperr.NotFound)
}

func TestCancelReasonBecomesMemo(t *testing.T) {
	a := withStatus(t, StatusPending)
	require.NoError(t, a.Cancel(" allergy reported ", now))
	assert.Equal(t, StatusCancelled, a.Status())
	assert.Equal(t, "allergy reported", a.Memo())
}

func TestUpdateReplacesItems(t *testing.T) {
	a := withStatus(t, StatusPending)
	replacement := amoxicillin(t)

	require.NoError(t, a.Update("", []*Item{replacement}, now))
	items := a.Items()
	require.Len(t, items, 1)
	assert.Equal(t, replacement.ID, items[0].ID)

	require.NoError(t, a.Update("take with water", nil, now))
	assert.Equal(t, "take with water", a.Memo())
	assert.Len(t, a.Items(), 1)
}

func TestMarkPersisted(t *testing.T) {
	a, err := New(uuid.New(), order(amoxicillin(t)), now)
	require.NoError(t, err)
	require.NoError(t, a.Prescribe(now))

	events := a.Changes()
	require.Len(t, events, 2)
	assert.Equal(t, 1, events[0].Version)
	assert.Equal(t, a.PatientID().String(), events[0].PatientID)

	a.MarkPersisted()
	assert.Equal(t, 1, a.Version())
	assert.Empty(t, a.Changes())
}
