package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/skyleedevzero86/Health-mr-sub001/internal/apperr"
	"github.com/skyleedevzero86/Health-mr-sub001/internal/directory"
)

// Directory reads patients, staff and departments from the shared tables.
// Defaults are the rows flagged is_default.
type Directory struct {
	pool *pgxpool.Pool
}

// NewDirectory creates a directory on pool
func NewDirectory(pool *pgxpool.Pool) *Directory {
	return &Directory{pool: pool}
}

var _ directory.Directory = (*Directory)(nil)

func (d *Directory) Patient(ctx context.Context, id uuid.UUID) (*directory.Patient, error) {
	p := &directory.Patient{}
	err := d.pool.QueryRow(ctx, `SELECT id, name, email, phone FROM patients WHERE id = $1`, id).
		Scan(&p.ID, &p.Name, &p.Email, &p.Phone)
	if noRows(err) {
		return nil, notFound("patient", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get patient: %w", err)
	}
	return p, nil
}

func (d *Directory) Staff(ctx context.Context, id uuid.UUID) (*directory.Staff, error) {
	s, err := d.staff(ctx, `SELECT id, name, role, department_id FROM staff WHERE id = $1`, id)
	if apperr.Is(err, apperr.NotFound) {
		return nil, notFound("staff", id)
	}
	return s, err
}

func (d *Directory) Department(ctx context.Context, id uuid.UUID) (*directory.Department, error) {
	dep, err := d.department(ctx, `SELECT id, name FROM departments WHERE id = $1`, id)
	if apperr.Is(err, apperr.NotFound) {
		return nil, notFound("department", id)
	}
	return dep, err
}

func (d *Directory) DefaultDepartment(ctx context.Context) (*directory.Department, error) {
	dep, err := d.department(ctx, `SELECT id, name FROM departments WHERE is_default`)
	if apperr.Is(err, apperr.NotFound) {
		return nil, apperr.New(apperr.NotFound, "no default department configured")
	}
	return dep, err
}

func (d *Directory) DefaultDoctor(ctx context.Context) (*directory.Staff, error) {
	s, err := d.staff(ctx, `SELECT id, name, role, department_id FROM staff WHERE is_default AND role = $1`, directory.RoleDoctor)
	if apperr.Is(err, apperr.NotFound) {
		return nil, apperr.New(apperr.NotFound, "no default doctor configured")
	}
	return s, err
}

func (d *Directory) staff(ctx context.Context, query string, args ...any) (*directory.Staff, error) {
	s := &directory.Staff{}
	err := d.pool.QueryRow(ctx, query, args...).Scan(&s.ID, &s.Name, &s.Role, &s.DepartmentID)
	if noRows(err) {
		return nil, apperr.New(apperr.NotFound, "staff not found")
	}
	if err != nil {
		return nil, fmt.Errorf("get staff: %w", err)
	}
	return s, nil
}

func (d *Directory) department(ctx context.Context, query string, args ...any) (*directory.Department, error) {
	dep := &directory.Department{}
	err := d.pool.QueryRow(ctx, query, args...).Scan(&dep.ID, &dep.Name)
	if noRows(err) {
		return nil, apperr.New(apperr.NotFound, "department not found")
	}
	if err != nil {
		return nil, fmt.Errorf("get department: %w", err)
	}
	return dep, nil
}
