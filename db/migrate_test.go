package db

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConvertToMigrateURL(t *testing.T) {
	got, err := convertToMigrateURL("postgres://kopi:pw@localhost:5432/kopi?sslmode=disable")
	require.NoError(t, err)
	assert.Equal(t, "pgx5://kopi:pw@localhost:5432/kopi?sslmode=disable", got)

	got, err = convertToMigrateURL("postgresql://localhost/kopi")
	require.NoError(t, err)
	assert.Equal(t, "pgx5://localhost/kopi", got)

	_, err = convertToMigrateURL("mysql://localhost/kopi")
	assert.Error(t, err)
}

func TestMigrationsEmbedded(t *testing.T) {
	entries, err := migrationsFS.ReadDir("migrations")
	require.NoError(t, err)
	assert.NotEmpty(t, entries)
	// Every up migration needs a matching down migration.
	ups, downs := 0, 0
	for _, e := range entries {
		switch {
		case len(e.Name()) > 7 && e.Name()[len(e.Name())-7:] == ".up.sql":
			ups++
		case len(e.Name()) > 9 && e.Name()[len(e.Name())-9:] == ".down.sql":
			downs++
		}
	}
	assert.Equal(t, ups, downs)
}
