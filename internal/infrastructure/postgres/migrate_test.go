package postgres

import (
	"strings"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadSortsByVersion(t *testing.T) {
	files := fstest.MapFS{
		"010_late.sql":  {Data: []byte("SELECT 10;")},
		"002_mid.sql":   {Data: []byte("SELECT 2;")},
		"001_first.sql": {Data: []byte("SELECT 1;")},
		"README.md":     {Data: []byte("notes")},
		"draft.sql":     {Data: []byte("SELECT 0;")},
		"x_bad.sql":     {Data: []byte("SELECT 0;")},
	}

	migrations, err := NewMigrator(nil, files, nil).Load()
	require.NoError(t, err)
	require.Len(t, migrations, 3)
	assert.Equal(t, []int{1, 2, 10}, []int{migrations[0].Version, migrations[1].Version, migrations[2].Version})
	assert.Equal(t, "001_first.sql", migrations[0].Name)
	assert.Equal(t, "SELECT 1;", migrations[0].SQL)
}

func TestLoadRejectsRepeatedVersion(t *testing.T) {
	files := fstest.MapFS{
		"001_a.sql":  {Data: []byte("SELECT 1;")},
		"0001_b.sql": {Data: []byte("SELECT 1;")},
	}

	_, err := NewMigrator(nil, files, nil).Load()
	assert.Error(t, err)
}

func TestEmbeddedMigrations(t *testing.T) {
	migrations, err := NewMigrator(nil, Migrations(), nil).Load()
	require.NoError(t, err)
	require.NotEmpty(t, migrations)
	for i, m := range migrations {
		assert.Equal(t, i+1, m.Version, m.Name)
		assert.NotEmpty(t, m.SQL)
	}
}

func TestEmbeddedMigrationsEnforceIntegrity(t *testing.T) {
	migrations, err := NewMigrator(nil, Migrations(), nil).Load()
	require.NoError(t, err)
	var all strings.Builder
	for _, m := range migrations {
		all.WriteString(m.SQL)
	}
	sql := all.String()

	statuses := map[string]string{
		"reservations":  "'PENDING', 'CONFIRMED', 'COMPLETED', 'CANCELLED'",
		"check_ins":     "'PENDING', 'COMPLETED', 'CANCELLED'",
		"treatments":    "'PENDING', 'IN_PROGRESS', 'COMPLETED', 'CANCELLED'",
		"prescriptions": "'PENDING', 'PRESCRIBED', 'DISPENSED', 'CANCELLED'",
		"payments":      "'UNPAID', 'PARTIAL', 'PAID', 'CANCELLED', 'REFUNDED'",
	}
	for table, values := range statuses {
		assert.Contains(t, sql, "ALTER TABLE "+table+" ADD CONSTRAINT chk_"+table+"_status\n    CHECK (status IN ("+values+"))", table)
	}
	assert.Contains(t, sql, "CREATE UNIQUE INDEX IF NOT EXISTS "+openSlotIndex+"\n    ON reservations (patient_id, scheduled_at)\n    WHERE status IN ('PENDING', 'CONFIRMED')")
	assert.Contains(t, sql, "CREATE UNIQUE INDEX IF NOT EXISTS "+checkInPerReservation+"\n    ON check_ins (reservation_id)")
}
