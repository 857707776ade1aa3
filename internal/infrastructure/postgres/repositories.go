package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/skyleedevzero86/Health-mr-sub001/internal/apperr"
	"github.com/skyleedevzero86/Health-mr-sub001/internal/domain/checkin"
	"github.com/skyleedevzero86/Health-mr-sub001/internal/domain/payment"
	"github.com/skyleedevzero86/Health-mr-sub001/internal/domain/prescription"
	"github.com/skyleedevzero86/Health-mr-sub001/internal/domain/reservation"
	"github.com/skyleedevzero86/Health-mr-sub001/internal/domain/treatment"
)

// Get takes a row lock held until the unit of work ends. Update still
// checks the version, since aggregates may come from an earlier unit.

const reservationColumns = `id, patient_id, staff_id, scheduled_at, status, memo, cancel_reason, version, created_at, updated_at`

type reservationRepo struct{ q querier }

func scanReservation(row pgx.Row) (reservation.State, error) {
	var s reservation.State
	err := row.Scan(&s.ID, &s.PatientID, &s.StaffID, &s.ScheduledAt, &s.Status,
		&s.Memo, &s.CancelReason, &s.Version, &s.CreatedAt, &s.UpdatedAt)
	return s, err
}

func (r reservationRepo) Get(ctx context.Context, id uuid.UUID) (*reservation.Reservation, error) {
	s, err := scanReservation(r.q.QueryRow(ctx,
		`SELECT `+reservationColumns+` FROM reservations WHERE id = $1 FOR UPDATE`, id))
	if noRows(err) {
		return nil, notFound("reservation", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get reservation: %w", err)
	}
	return reservation.Restore(s), nil
}

func (r reservationRepo) Insert(ctx context.Context, res *reservation.Reservation) error {
	s := res.State()
	_, err := r.q.Exec(ctx, `
		INSERT INTO reservations (`+reservationColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		s.ID, s.PatientID, s.StaffID, s.ScheduledAt, s.Status,
		s.Memo, s.CancelReason, s.Version+1, s.CreatedAt, s.UpdatedAt)
	if uniqueViolation(err, openSlotIndex) {
		return slotTaken(s)
	}
	if err != nil {
		return fmt.Errorf("insert reservation: %w", err)
	}
	return persist(ctx, r.q, res)
}

func (r reservationRepo) Update(ctx context.Context, res *reservation.Reservation) error {
	s := res.State()
	tag, err := r.q.Exec(ctx, `
		UPDATE reservations
		SET staff_id = $2, scheduled_at = $3, status = $4, memo = $5, cancel_reason = $6,
		    version = $7 + 1, updated_at = $8
		WHERE id = $1 AND version = $7`,
		s.ID, s.StaffID, s.ScheduledAt, s.Status, s.Memo, s.CancelReason, s.Version, s.UpdatedAt)
	if uniqueViolation(err, openSlotIndex) {
		return slotTaken(s)
	}
	if err != nil {
		return fmt.Errorf("update reservation: %w", err)
	}
	if err := checkUpdated(ctx, r.q, tag, "reservations", "reservation", s.ID); err != nil {
		return err
	}
	return persist(ctx, r.q, res)
}

// slotTaken reports a concurrent booking that got past ExistsOpenAt
func slotTaken(s reservation.State) error {
	return apperr.Newf(apperr.DuplicateReservation, "patient already has a reservation at %s",
		s.ScheduledAt.Format(time.RFC3339))
}

func (r reservationRepo) ExistsOpenAt(ctx context.Context, patientID uuid.UUID, at time.Time, excludeID uuid.UUID) (bool, error) {
	var exists bool
	err := r.q.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM reservations
			WHERE patient_id = $1 AND scheduled_at = $2 AND id <> $3 AND status IN ($4, $5)
		)`, patientID, at, excludeID, reservation.StatusPending, reservation.StatusConfirmed).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check reservation slot: %w", err)
	}
	return exists, nil
}

func (r reservationRepo) ListOpenByPatientBetween(ctx context.Context, patientID uuid.UUID, from, to time.Time) ([]*reservation.Reservation, error) {
	return r.list(ctx, `
		SELECT `+reservationColumns+` FROM reservations
		WHERE patient_id = $1 AND scheduled_at >= $2 AND scheduled_at < $3 AND status IN ($4, $5)
		ORDER BY scheduled_at, id`,
		patientID, from, to, reservation.StatusPending, reservation.StatusConfirmed)
}

func (r reservationRepo) ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*reservation.Reservation, error) {
	return r.list(ctx, `
		SELECT `+reservationColumns+` FROM reservations
		WHERE patient_id = $1
		ORDER BY scheduled_at, id`, patientID)
}

func (r reservationRepo) list(ctx context.Context, query string, args ...any) ([]*reservation.Reservation, error) {
	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list reservations: %w", err)
	}
	defer rows.Close()

	var out []*reservation.Reservation
	for rows.Next() {
		s, err := scanReservation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan reservation: %w", err)
		}
		out = append(out, reservation.Restore(s))
	}
	return out, rows.Err()
}

const checkInColumns = `id, patient_id, staff_id, reservation_id, check_in_at, status, comment, version, created_at, updated_at`

type checkInRepo struct{ q querier }

func scanCheckIn(row pgx.Row) (checkin.State, error) {
	var s checkin.State
	err := row.Scan(&s.ID, &s.PatientID, &s.StaffID, &s.ReservationID, &s.CheckInAt,
		&s.Status, &s.Comment, &s.Version, &s.CreatedAt, &s.UpdatedAt)
	return s, err
}

func (r checkInRepo) Get(ctx context.Context, id uuid.UUID) (*checkin.CheckIn, error) {
	s, err := scanCheckIn(r.q.QueryRow(ctx,
		`SELECT `+checkInColumns+` FROM check_ins WHERE id = $1 FOR UPDATE`, id))
	if noRows(err) {
		return nil, notFound("check-in", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get check-in: %w", err)
	}
	return checkin.Restore(s), nil
}

func (r checkInRepo) Insert(ctx context.Context, c *checkin.CheckIn) error {
	s := c.State()
	_, err := r.q.Exec(ctx, `
		INSERT INTO check_ins (`+checkInColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		s.ID, s.PatientID, s.StaffID, s.ReservationID, s.CheckInAt,
		s.Status, s.Comment, s.Version+1, s.CreatedAt, s.UpdatedAt)
	if uniqueViolation(err, checkInPerReservation) {
		return apperr.Newf(apperr.InvalidTransition, "reservation %s already has a check-in", *s.ReservationID)
	}
	if err != nil {
		return fmt.Errorf("insert check-in: %w", err)
	}
	return persist(ctx, r.q, c)
}

func (r checkInRepo) Update(ctx context.Context, c *checkin.CheckIn) error {
	s := c.State()
	tag, err := r.q.Exec(ctx, `
		UPDATE check_ins
		SET staff_id = $2, status = $3, comment = $4, version = $5 + 1, updated_at = $6
		WHERE id = $1 AND version = $5`,
		s.ID, s.StaffID, s.Status, s.Comment, s.Version, s.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update check-in: %w", err)
	}
	if err := checkUpdated(ctx, r.q, tag, "check_ins", "check-in", s.ID); err != nil {
		return err
	}
	return persist(ctx, r.q, c)
}

// FindByPatientBetween first takes a transaction-scoped advisory lock on the
// patient and window, so concurrent units creating a check-in for the same
// day run one after the other.
func (r checkInRepo) FindByPatientBetween(ctx context.Context, patientID uuid.UUID, from, to time.Time) ([]*checkin.CheckIn, error) {
	if _, err := r.q.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`,
		patientDayKey(patientID, from)); err != nil {
		return nil, fmt.Errorf("lock patient day: %w", err)
	}
	rows, err := r.q.Query(ctx, `
		SELECT `+checkInColumns+` FROM check_ins
		WHERE patient_id = $1 AND check_in_at >= $2 AND check_in_at < $3 AND status <> $4
		ORDER BY check_in_at, id`,
		patientID, from, to, checkin.StatusCancelled)
	if err != nil {
		return nil, fmt.Errorf("find check-ins: %w", err)
	}
	defer rows.Close()

	var out []*checkin.CheckIn
	for rows.Next() {
		s, err := scanCheckIn(rows)
		if err != nil {
			return nil, fmt.Errorf("scan check-in: %w", err)
		}
		out = append(out, checkin.Restore(s))
	}
	return out, rows.Err()
}

func patientDayKey(patientID uuid.UUID, from time.Time) string {
	return "check-in/" + patientID.String() + "/" + from.UTC().Format(time.RFC3339)
}

const treatmentColumns = `t.id, t.check_in_id, t.patient_id, t.staff_id, t.department_id, t.category, t.status,
	t.note, t.cancel_reason, t.treatment_date, t.started_at, t.ended_at, t.version, t.created_at, t.updated_at, d.detail`

const treatmentFrom = ` FROM treatments t JOIN treatment_details d ON d.treatment_id = t.id`

type treatmentRepo struct{ q querier }

func scanTreatment(row pgx.Row) (*treatment.Treatment, error) {
	var (
		s      treatment.State
		detail treatment.Detail
	)
	err := row.Scan(&s.ID, &s.CheckInID, &s.PatientID, &s.StaffID, &s.DepartmentID, &s.Category, &s.Status,
		&s.Note, &s.CancelReason, &s.TreatmentDate, &s.StartedAt, &s.EndedAt, &s.Version, &s.CreatedAt, &s.UpdatedAt,
		&detail)
	if err != nil {
		return nil, err
	}
	return treatment.Restore(s, detail), nil
}

func (r treatmentRepo) Get(ctx context.Context, id uuid.UUID) (*treatment.Treatment, error) {
	t, err := scanTreatment(r.q.QueryRow(ctx,
		`SELECT `+treatmentColumns+treatmentFrom+` WHERE t.id = $1 FOR UPDATE OF t`, id))
	if noRows(err) {
		return nil, notFound("treatment", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get treatment: %w", err)
	}
	return t, nil
}

// Insert writes the treatment row and its detail record; a failure of
// either aborts the surrounding transaction
func (r treatmentRepo) Insert(ctx context.Context, t *treatment.Treatment) error {
	s, d := t.State(), t.Detail()
	_, err := r.q.Exec(ctx, `
		INSERT INTO treatments (id, check_in_id, patient_id, staff_id, department_id, category, status,
		                        note, cancel_reason, treatment_date, started_at, ended_at, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		s.ID, s.CheckInID, s.PatientID, s.StaffID, s.DepartmentID, s.Category, s.Status,
		s.Note, s.CancelReason, s.TreatmentDate, s.StartedAt, s.EndedAt, s.Version+1, s.CreatedAt, s.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert treatment: %w", err)
	}
	_, err = r.q.Exec(ctx, `
		INSERT INTO treatment_details (treatment_id, category, status, detail)
		VALUES ($1, $2, $3, $4)`,
		s.ID, d.Category, d.Status, d)
	if err != nil {
		return fmt.Errorf("insert treatment detail: %w", err)
	}
	return persist(ctx, r.q, t)
}

func (r treatmentRepo) Update(ctx context.Context, t *treatment.Treatment) error {
	s := t.State()
	tag, err := r.q.Exec(ctx, `
		UPDATE treatments
		SET staff_id = $2, department_id = $3, status = $4, note = $5, cancel_reason = $6,
		    started_at = $7, ended_at = $8, version = $9 + 1, updated_at = $10
		WHERE id = $1 AND version = $9`,
		s.ID, s.StaffID, s.DepartmentID, s.Status, s.Note, s.CancelReason,
		s.StartedAt, s.EndedAt, s.Version, s.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update treatment: %w", err)
	}
	if err := checkUpdated(ctx, r.q, tag, "treatments", "treatment", s.ID); err != nil {
		return err
	}
	return persist(ctx, r.q, t)
}

func (r treatmentRepo) FindByCheckIn(ctx context.Context, checkInID uuid.UUID) (*treatment.Treatment, error) {
	t, err := scanTreatment(r.q.QueryRow(ctx,
		`SELECT `+treatmentColumns+treatmentFrom+` WHERE t.check_in_id = $1`, checkInID))
	if noRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find treatment by check-in: %w", err)
	}
	return t, nil
}

func (r treatmentRepo) ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*treatment.Treatment, error) {
	rows, err := r.q.Query(ctx,
		`SELECT `+treatmentColumns+treatmentFrom+` WHERE t.patient_id = $1 ORDER BY t.treatment_date, t.id`, patientID)
	if err != nil {
		return nil, fmt.Errorf("list treatments: %w", err)
	}
	defer rows.Close()

	var out []*treatment.Treatment
	for rows.Next() {
		t, err := scanTreatment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan treatment: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

const prescriptionColumns = `id, treatment_id, patient_id, staff_id, type, status, memo, prescription_date, version, created_at, updated_at`

type prescriptionRepo struct{ q querier }

func (r prescriptionRepo) load(ctx context.Context, query string, arg any) (*prescription.Aggregate, error) {
	var s prescription.State
	err := r.q.QueryRow(ctx, query, arg).Scan(&s.ID, &s.TreatmentID, &s.PatientID, &s.StaffID, &s.Type,
		&s.Status, &s.Memo, &s.PrescriptionDate, &s.Version, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}

	rows, err := r.q.Query(ctx, `
		SELECT id, drug_code, drug_name, dosage, dose, frequency, days, total_quantity, unit, note
		FROM prescription_items
		WHERE prescription_id = $1
		ORDER BY position`, s.ID)
	if err != nil {
		return nil, fmt.Errorf("query prescription items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var it prescription.Item
		if err := rows.Scan(&it.ID, &it.DrugCode, &it.DrugName, &it.Dosage, &it.Dose,
			&it.Frequency, &it.Days, &it.TotalQuantity, &it.Unit, &it.Note); err != nil {
			return nil, fmt.Errorf("scan prescription item: %w", err)
		}
		s.Items = append(s.Items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return prescription.Restore(s), nil
}

func (r prescriptionRepo) Get(ctx context.Context, id uuid.UUID) (*prescription.Aggregate, error) {
	a, err := r.load(ctx, `SELECT `+prescriptionColumns+` FROM prescriptions WHERE id = $1 FOR UPDATE`, id)
	if noRows(err) {
		return nil, notFound("prescription", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get prescription: %w", err)
	}
	return a, nil
}

func (r prescriptionRepo) Insert(ctx context.Context, a *prescription.Aggregate) error {
	s := a.State()
	_, err := r.q.Exec(ctx, `
		INSERT INTO prescriptions (`+prescriptionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		s.ID, s.TreatmentID, s.PatientID, s.StaffID, s.Type, s.Status, s.Memo,
		s.PrescriptionDate, s.Version+1, s.CreatedAt, s.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert prescription: %w", err)
	}
	if err := r.writeItems(ctx, s); err != nil {
		return err
	}
	return persist(ctx, r.q, a)
}

func (r prescriptionRepo) Update(ctx context.Context, a *prescription.Aggregate) error {
	s := a.State()
	tag, err := r.q.Exec(ctx, `
		UPDATE prescriptions
		SET type = $2, status = $3, memo = $4, version = $5 + 1, updated_at = $6
		WHERE id = $1 AND version = $5`,
		s.ID, s.Type, s.Status, s.Memo, s.Version, s.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update prescription: %w", err)
	}
	if err := checkUpdated(ctx, r.q, tag, "prescriptions", "prescription", s.ID); err != nil {
		return err
	}
	if _, err := r.q.Exec(ctx, `DELETE FROM prescription_items WHERE prescription_id = $1`, s.ID); err != nil {
		return fmt.Errorf("clear prescription items: %w", err)
	}
	if err := r.writeItems(ctx, s); err != nil {
		return err
	}
	return persist(ctx, r.q, a)
}

func (r prescriptionRepo) writeItems(ctx context.Context, s prescription.State) error {
	for i, it := range s.Items {
		_, err := r.q.Exec(ctx, `
			INSERT INTO prescription_items (id, prescription_id, position, drug_code, drug_name,
			                                dosage, dose, frequency, days, total_quantity, unit, note)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
			it.ID, s.ID, i, it.DrugCode, it.DrugName,
			it.Dosage, it.Dose, it.Frequency, it.Days, it.TotalQuantity, it.Unit, it.Note)
		if err != nil {
			return fmt.Errorf("insert prescription item %s: %w", it.ID, err)
		}
	}
	return nil
}

func (r prescriptionRepo) FindByTreatment(ctx context.Context, treatmentID uuid.UUID) (*prescription.Aggregate, error) {
	a, err := r.load(ctx, `SELECT `+prescriptionColumns+` FROM prescriptions WHERE treatment_id = $1`, treatmentID)
	if noRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find prescription by treatment: %w", err)
	}
	return a, nil
}

const paymentColumns = `id, treatment_id, patient_id, status, method, total, self_pay, insurance, current_amount, remain,
	approval_number, approval_date, card_company, payment_date, cancel_reason, refund_amount, refund_method, refund_date,
	version, created_at, updated_at`

type paymentRepo struct{ q querier }

func scanPayment(row pgx.Row) (payment.State, error) {
	var s payment.State
	err := row.Scan(&s.ID, &s.TreatmentID, &s.PatientID, &s.Status, &s.Method,
		&s.Total, &s.SelfPay, &s.Insurance, &s.Current, &s.Remain,
		&s.ApprovalNumber, &s.ApprovalDate, &s.CardCompany, &s.PaymentDate, &s.CancelReason,
		&s.RefundAmount, &s.RefundMethod, &s.RefundDate,
		&s.Version, &s.CreatedAt, &s.UpdatedAt)
	return s, err
}

func (r paymentRepo) Get(ctx context.Context, id uuid.UUID) (*payment.Payment, error) {
	s, err := scanPayment(r.q.QueryRow(ctx, `SELECT `+paymentColumns+` FROM payments WHERE id = $1 FOR UPDATE`, id))
	if noRows(err) {
		return nil, notFound("payment", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get payment: %w", err)
	}
	return payment.Restore(s), nil
}

func (r paymentRepo) Insert(ctx context.Context, p *payment.Payment) error {
	s := p.State()
	_, err := r.q.Exec(ctx, `
		INSERT INTO payments (`+paymentColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)`,
		s.ID, s.TreatmentID, s.PatientID, s.Status, s.Method,
		s.Total, s.SelfPay, s.Insurance, s.Current, s.Remain,
		s.ApprovalNumber, s.ApprovalDate, s.CardCompany, s.PaymentDate, s.CancelReason,
		s.RefundAmount, s.RefundMethod, s.RefundDate,
		s.Version+1, s.CreatedAt, s.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert payment: %w", err)
	}
	return persist(ctx, r.q, p)
}

func (r paymentRepo) Update(ctx context.Context, p *payment.Payment) error {
	s := p.State()
	tag, err := r.q.Exec(ctx, `
		UPDATE payments
		SET status = $2, method = $3, total = $4, self_pay = $5, insurance = $6, current_amount = $7, remain = $8,
		    approval_number = $9, approval_date = $10, card_company = $11, payment_date = $12, cancel_reason = $13,
		    refund_amount = $14, refund_method = $15, refund_date = $16, version = $17 + 1, updated_at = $18
		WHERE id = $1 AND version = $17`,
		s.ID, s.Status, s.Method, s.Total, s.SelfPay, s.Insurance, s.Current, s.Remain,
		s.ApprovalNumber, s.ApprovalDate, s.CardCompany, s.PaymentDate, s.CancelReason,
		s.RefundAmount, s.RefundMethod, s.RefundDate, s.Version, s.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update payment: %w", err)
	}
	if err := checkUpdated(ctx, r.q, tag, "payments", "payment", s.ID); err != nil {
		return err
	}
	return persist(ctx, r.q, p)
}

func (r paymentRepo) FindByTreatment(ctx context.Context, treatmentID uuid.UUID) (*payment.Payment, error) {
	s, err := scanPayment(r.q.QueryRow(ctx, `SELECT `+paymentColumns+` FROM payments WHERE treatment_id = $1`, treatmentID))
	if noRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find payment by treatment: %w", err)
	}
	return payment.Restore(s), nil
}
