// Package directory resolves patients, staff and departments referenced by
// episode records. It is read-only from the coordinator's point of view.
package directory

import (
	"context"

	"github.com/google/uuid"
)

// Role is a staff member's job
type Role string

const (
	RoleDoctor    Role = "DOCTOR"
	RoleNurse     Role = "NURSE"
	RoleReception Role = "RECEPTION"
	RoleAdmin     Role = "ADMIN"
)

// Patient is the notification-relevant view of a patient
type Patient struct {
	ID    uuid.UUID `json:"id"`
	Name  string    `json:"name"`
	Email string    `json:"email,omitempty"`
	Phone string    `json:"phone,omitempty"`
}

// Staff is a clinician or clerk
type Staff struct {
	ID           uuid.UUID  `json:"id"`
	Name         string     `json:"name"`
	Role         Role       `json:"role"`
	DepartmentID *uuid.UUID `json:"department_id,omitempty"`
}

// IsDoctor reports whether s may own a treatment
func (s *Staff) IsDoctor() bool { return s != nil && s.Role == RoleDoctor }

// Department is a clinical department
type Department struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
}

// Directory looks up people and departments. Missing ids yield apperr.NotFound.
type Directory interface {
	Patient(ctx context.Context, id uuid.UUID) (*Patient, error)
	Staff(ctx context.Context, id uuid.UUID) (*Staff, error)
	Department(ctx context.Context, id uuid.UUID) (*Department, error)
	// DefaultDepartment is where check-in driven treatments are filed
	DefaultDepartment(ctx context.Context) (*Department, error)
	// DefaultDoctor takes check-in driven treatments when the check-in staff is not a doctor
	DefaultDoctor(ctx context.Context) (*Staff, error)
}
