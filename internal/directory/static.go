package directory

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/google/uuid"

	"github.com/skyleedevzero86/Health-mr-sub001/internal/apperr"
)

// Static is an in-memory directory for tests and the memory store mode
type Static struct {
	mu          sync.RWMutex
	patients    map[uuid.UUID]Patient
	staff       map[uuid.UUID]Staff
	departments map[uuid.UUID]Department

	defaultDepartment uuid.UUID
	defaultDoctor     uuid.UUID
}

// NewStatic creates an empty directory
func NewStatic() *Static {
	return &Static{
		patients:    make(map[uuid.UUID]Patient),
		staff:       make(map[uuid.UUID]Staff),
		departments: make(map[uuid.UUID]Department),
	}
}

// AddPatient registers a patient
func (d *Static) AddPatient(p Patient) *Static {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.patients[p.ID] = p
	return d
}

// AddStaff registers a staff member
func (d *Static) AddStaff(s Staff) *Static {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.staff[s.ID] = s
	return d
}

// AddDepartment registers a department; the first one becomes the default
func (d *Static) AddDepartment(dep Department) *Static {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.departments[dep.ID] = dep
	if d.defaultDepartment == uuid.Nil {
		d.defaultDepartment = dep.ID
	}
	return d
}

// SetDefaults picks the default department and doctor
func (d *Static) SetDefaults(departmentID, doctorID uuid.UUID) *Static {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.defaultDepartment = departmentID
	d.defaultDoctor = doctorID
	return d
}

func (d *Static) Patient(_ context.Context, id uuid.UUID) (*Patient, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	p, ok := d.patients[id]
	if !ok {
		return nil, apperr.Newf(apperr.NotFound, "patient %s not found", id)
	}
	return &p, nil
}

func (d *Static) Staff(_ context.Context, id uuid.UUID) (*Staff, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	s, ok := d.staff[id]
	if !ok {
		return nil, apperr.Newf(apperr.NotFound, "staff %s not found", id)
	}
	return &s, nil
}

func (d *Static) Department(_ context.Context, id uuid.UUID) (*Department, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	dep, ok := d.departments[id]
	if !ok {
		return nil, apperr.Newf(apperr.NotFound, "department %s not found", id)
	}
	return &dep, nil
}

func (d *Static) DefaultDepartment(ctx context.Context) (*Department, error) {
	d.mu.RLock()
	id := d.defaultDepartment
	d.mu.RUnlock()
	if id == uuid.Nil {
		return nil, apperr.New(apperr.NotFound, "no default department configured")
	}
	return d.Department(ctx, id)
}

func (d *Static) DefaultDoctor(ctx context.Context) (*Staff, error) {
	d.mu.RLock()
	id := d.defaultDoctor
	d.mu.RUnlock()
	if id == uuid.Nil {
		return nil, apperr.New(apperr.NotFound, "no default doctor configured")
	}
	s, err := d.Staff(ctx, id)
	if err != nil {
		return nil, err
	}
	if !s.IsDoctor() {
		return nil, apperr.Newf(apperr.InvalidState, "default doctor %s has role %s", id, s.Role)
	}
	return s, nil
}

// Seed is the file format accepted by LoadStatic
type Seed struct {
	Patients          []Patient    `json:"patients"`
	Staff             []Staff      `json:"staff"`
	Departments       []Department `json:"departments"`
	DefaultDepartment uuid.UUID    `json:"default_department"`
	DefaultDoctor     uuid.UUID    `json:"default_doctor"`
}

// LoadStatic builds a directory from a JSON seed
func LoadStatic(r io.Reader) (*Static, error) {
	var seed Seed
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&seed); err != nil {
		return nil, fmt.Errorf("decode directory seed: %w", err)
	}

	d := NewStatic()
	for _, p := range seed.Patients {
		d.AddPatient(p)
	}
	for _, s := range seed.Staff {
		d.AddStaff(s)
	}
	for _, dep := range seed.Departments {
		d.AddDepartment(dep)
	}
	if seed.DefaultDepartment != uuid.Nil {
		if _, ok := d.departments[seed.DefaultDepartment]; !ok {
			return nil, fmt.Errorf("default department %s is not in the seed", seed.DefaultDepartment)
		}
		d.defaultDepartment = seed.DefaultDepartment
	}
	if seed.DefaultDoctor != uuid.Nil {
		if _, ok := d.staff[seed.DefaultDoctor]; !ok {
			return nil, fmt.Errorf("default doctor %s is not in the seed", seed.DefaultDoctor)
		}
		d.defaultDoctor = seed.DefaultDoctor
	}
	return d, nil
}
