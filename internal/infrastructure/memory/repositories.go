package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/skyleedevzero86/Health-mr-sub001/internal/domain/checkin"
	"github.com/skyleedevzero86/Health-mr-sub001/internal/domain/payment"
	"github.com/skyleedevzero86/Health-mr-sub001/internal/domain/prescription"
	"github.com/skyleedevzero86/Health-mr-sub001/internal/domain/reservation"
	"github.com/skyleedevzero86/Health-mr-sub001/internal/domain/treatment"
)

func inRange(t, from, to time.Time) bool {
	return !t.Before(from) && t.Before(to)
}

type reservationRepo struct{ u *unit }

func (r reservationRepo) Get(_ context.Context, id uuid.UUID) (*reservation.Reservation, error) {
	s, ok := r.u.state.reservations[id]
	if !ok {
		return nil, notFound("reservation", id)
	}
	return reservation.Restore(s), nil
}

func (r reservationRepo) Insert(_ context.Context, res *reservation.Reservation) error {
	if _, ok := r.u.state.reservations[res.ID()]; ok {
		return fmt.Errorf("reservation %s already exists", res.ID())
	}
	r.u.persisted(res)
	r.u.state.reservations[res.ID()] = res.State()
	return nil
}

func (r reservationRepo) Update(_ context.Context, res *reservation.Reservation) error {
	cur, ok := r.u.state.reservations[res.ID()]
	if !ok {
		return notFound("reservation", res.ID())
	}
	if cur.Version != res.Version() {
		return conflict("reservation", res.ID())
	}
	r.u.persisted(res)
	r.u.state.reservations[res.ID()] = res.State()
	return nil
}

func (r reservationRepo) ExistsOpenAt(_ context.Context, patientID uuid.UUID, at time.Time, excludeID uuid.UUID) (bool, error) {
	for id, s := range r.u.state.reservations {
		if id == excludeID || s.PatientID != patientID || !s.ScheduledAt.Equal(at) {
			continue
		}
		if reservation.Restore(s).IsOpen() {
			return true, nil
		}
	}
	return false, nil
}

func (r reservationRepo) ListOpenByPatientBetween(_ context.Context, patientID uuid.UUID, from, to time.Time) ([]*reservation.Reservation, error) {
	return r.list(func(s reservation.State) bool {
		return s.PatientID == patientID && inRange(s.ScheduledAt, from, to) && reservation.Restore(s).IsOpen()
	}), nil
}

func (r reservationRepo) ListByPatient(_ context.Context, patientID uuid.UUID) ([]*reservation.Reservation, error) {
	return r.list(func(s reservation.State) bool { return s.PatientID == patientID }), nil
}

func (r reservationRepo) list(match func(reservation.State) bool) []*reservation.Reservation {
	var states []reservation.State
	for _, s := range r.u.state.reservations {
		if match(s) {
			states = append(states, s)
		}
	}
	sort.Slice(states, func(i, j int) bool { return states[i].ScheduledAt.Before(states[j].ScheduledAt) })
	out := make([]*reservation.Reservation, 0, len(states))
	for _, s := range states {
		out = append(out, reservation.Restore(s))
	}
	return out
}

type checkInRepo struct{ u *unit }

func (r checkInRepo) Get(_ context.Context, id uuid.UUID) (*checkin.CheckIn, error) {
	s, ok := r.u.state.checkIns[id]
	if !ok {
		return nil, notFound("check-in", id)
	}
	return checkin.Restore(s), nil
}

func (r checkInRepo) Insert(_ context.Context, c *checkin.CheckIn) error {
	if _, ok := r.u.state.checkIns[c.ID()]; ok {
		return fmt.Errorf("check-in %s already exists", c.ID())
	}
	r.u.persisted(c)
	r.u.state.checkIns[c.ID()] = c.State()
	return nil
}

func (r checkInRepo) Update(_ context.Context, c *checkin.CheckIn) error {
	cur, ok := r.u.state.checkIns[c.ID()]
	if !ok {
		return notFound("check-in", c.ID())
	}
	if cur.Version != c.Version() {
		return conflict("check-in", c.ID())
	}
	r.u.persisted(c)
	r.u.state.checkIns[c.ID()] = c.State()
	return nil
}

func (r checkInRepo) FindByPatientBetween(_ context.Context, patientID uuid.UUID, from, to time.Time) ([]*checkin.CheckIn, error) {
	var states []checkin.State
	for _, s := range r.u.state.checkIns {
		if s.PatientID == patientID && s.Status != checkin.StatusCancelled && inRange(s.CheckInAt, from, to) {
			states = append(states, s)
		}
	}
	sort.Slice(states, func(i, j int) bool { return states[i].CheckInAt.Before(states[j].CheckInAt) })
	out := make([]*checkin.CheckIn, 0, len(states))
	for _, s := range states {
		out = append(out, checkin.Restore(s))
	}
	return out, nil
}

type treatmentRepo struct{ u *unit }

func (r treatmentRepo) Get(_ context.Context, id uuid.UUID) (*treatment.Treatment, error) {
	row, ok := r.u.state.treatments[id]
	if !ok {
		return nil, notFound("treatment", id)
	}
	return treatment.Restore(row.state, row.detail), nil
}

func (r treatmentRepo) Insert(_ context.Context, t *treatment.Treatment) error {
	if _, ok := r.u.state.treatments[t.ID()]; ok {
		return fmt.Errorf("treatment %s already exists", t.ID())
	}
	r.u.persisted(t)
	r.u.state.treatments[t.ID()] = treatmentRow{state: t.State(), detail: t.Detail()}
	return nil
}

func (r treatmentRepo) Update(_ context.Context, t *treatment.Treatment) error {
	row, ok := r.u.state.treatments[t.ID()]
	if !ok {
		return notFound("treatment", t.ID())
	}
	if row.state.Version != t.Version() {
		return conflict("treatment", t.ID())
	}
	r.u.persisted(t)
	row.state = t.State()
	r.u.state.treatments[t.ID()] = row
	return nil
}

func (r treatmentRepo) FindByCheckIn(_ context.Context, checkInID uuid.UUID) (*treatment.Treatment, error) {
	for _, row := range r.u.state.treatments {
		if row.state.CheckInID != nil && *row.state.CheckInID == checkInID {
			return treatment.Restore(row.state, row.detail), nil
		}
	}
	return nil, nil
}

func (r treatmentRepo) ListByPatient(_ context.Context, patientID uuid.UUID) ([]*treatment.Treatment, error) {
	var rows []treatmentRow
	for _, row := range r.u.state.treatments {
		if row.state.PatientID == patientID {
			rows = append(rows, row)
		}
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].state.TreatmentDate.Before(rows[j].state.TreatmentDate) })
	out := make([]*treatment.Treatment, 0, len(rows))
	for _, row := range rows {
		out = append(out, treatment.Restore(row.state, row.detail))
	}
	return out, nil
}

type prescriptionRepo struct{ u *unit }

func (r prescriptionRepo) Get(_ context.Context, id uuid.UUID) (*prescription.Aggregate, error) {
	s, ok := r.u.state.prescriptions[id]
	if !ok {
		return nil, notFound("prescription", id)
	}
	return prescription.Restore(clonePrescription(s)), nil
}

func (r prescriptionRepo) Insert(_ context.Context, a *prescription.Aggregate) error {
	if _, ok := r.u.state.prescriptions[a.ID()]; ok {
		return fmt.Errorf("prescription %s already exists", a.ID())
	}
	r.u.persisted(a)
	r.u.state.prescriptions[a.ID()] = a.State()
	return nil
}

func (r prescriptionRepo) Update(_ context.Context, a *prescription.Aggregate) error {
	cur, ok := r.u.state.prescriptions[a.ID()]
	if !ok {
		return notFound("prescription", a.ID())
	}
	if cur.Version != a.Version() {
		return conflict("prescription", a.ID())
	}
	r.u.persisted(a)
	r.u.state.prescriptions[a.ID()] = a.State()
	return nil
}

func (r prescriptionRepo) FindByTreatment(_ context.Context, treatmentID uuid.UUID) (*prescription.Aggregate, error) {
	for _, s := range r.u.state.prescriptions {
		if s.TreatmentID == treatmentID {
			return prescription.Restore(clonePrescription(s)), nil
		}
	}
	return nil, nil
}

type paymentRepo struct{ u *unit }

func (r paymentRepo) Get(_ context.Context, id uuid.UUID) (*payment.Payment, error) {
	s, ok := r.u.state.payments[id]
	if !ok {
		return nil, notFound("payment", id)
	}
	return payment.Restore(s), nil
}

func (r paymentRepo) Insert(_ context.Context, p *payment.Payment) error {
	if _, ok := r.u.state.payments[p.ID()]; ok {
		return fmt.Errorf("payment %s already exists", p.ID())
	}
	r.u.persisted(p)
	r.u.state.payments[p.ID()] = p.State()
	return nil
}

func (r paymentRepo) Update(_ context.Context, p *payment.Payment) error {
	cur, ok := r.u.state.payments[p.ID()]
	if !ok {
		return notFound("payment", p.ID())
	}
	if cur.Version != p.Version() {
		return conflict("payment", p.ID())
	}
	r.u.persisted(p)
	r.u.state.payments[p.ID()] = p.State()
	return nil
}

func (r paymentRepo) FindByTreatment(_ context.Context, treatmentID uuid.UUID) (*payment.Payment, error) {
	for _, s := range r.u.state.payments {
		if s.TreatmentID == treatmentID {
			return payment.Restore(s), nil
		}
	}
	return nil, nil
}
