package directory

import (
	"context"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skyleedevzero86/Health-mr-sub001/internal/apperr"
)

func TestStaticLookups(t *testing.T) {
	ctx := context.Background()
	dept := Department{ID: uuid.New(), Name: "Internal Medicine"}
	doc := Staff{ID: uuid.New(), Name: "Dr. Han", Role: RoleDoctor}
	nurse := Staff{ID: uuid.New(), Name: "Kim", Role: RoleNurse}
	pat := Patient{ID: uuid.New(), Name: "Lee", Email: "lee@example.com"}

	d := NewStatic().AddDepartment(dept).AddStaff(doc).AddStaff(nurse).AddPatient(pat)

	got, err := d.Patient(ctx, pat.ID)
	require.NoError(t, err)
	assert.Equal(t, "lee@example.com", got.Email)

	_, err = d.Staff(ctx, uuid.New())
	assert.ErrorIs(t, err, apperr.NotFound)

	def, err := d.DefaultDepartment(ctx)
	require.NoError(t, err)
	assert.Equal(t, dept.ID, def.ID)

	_, err = d.DefaultDoctor(ctx)
	assert.ErrorIs(t, err, apperr.NotFound)

	d.SetDefaults(dept.ID, nurse.ID)
	_, err = d.DefaultDoctor(ctx)
	assert.ErrorIs(t, err, apperr.InvalidState)

	d.SetDefaults(dept.ID, doc.ID)
	s, err := d.DefaultDoctor(ctx)
	require.NoError(t, err)
	assert.True(t, s.IsDoctor())
}

func TestLoadStatic(t *testing.T) {
	ctx := context.Background()
	seed := `{
		"patients": [{"id": "4b7c1a3e-8f1d-4e4a-9d55-0b1f6f0d2a11", "name": "Lee", "phone": "010-1234-5678"}],
		"staff": [{"id": "8d0e5a2c-3b9f-4c61-a7e2-5f4d3c2b1a00", "name": "Dr. Han", "role": "DOCTOR"}],
		"departments": [{"id": "c2f9e8d7-6a5b-4c3d-8e1f-0a9b8c7d6e5f", "name": "Internal Medicine"}],
		"default_doctor": "8d0e5a2c-3b9f-4c61-a7e2-5f4d3c2b1a00"
	}`

	d, err := LoadStatic(strings.NewReader(seed))
	require.NoError(t, err)

	p, err := d.Patient(ctx, uuid.MustParse("4b7c1a3e-8f1d-4e4a-9d55-0b1f6f0d2a11"))
	require.NoError(t, err)
	assert.Equal(t, "010-1234-5678", p.Phone)

	doc, err := d.DefaultDoctor(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Dr. Han", doc.Name)

	dept, err := d.DefaultDepartment(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Internal Medicine", dept.Name)
}

func TestLoadStaticRejectsUnknownDefaults(t *testing.T) {
	_, err := LoadStatic(strings.NewReader(`{"default_doctor": "8d0e5a2c-3b9f-4c61-a7e2-5f4d3c2b1a00"}`))
	assert.ErrorContains(t, err, "default doctor")

	_, err = LoadStatic(strings.NewReader(`{"clinics": []}`))
	assert.Error(t, err)
}
