package db

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	database, err := Open(t.TempDir(), DefaultOpenOptions())
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })
	return database
}

func TestMigrateUp_FreshDB(t *testing.T) {
	database := openTestDB(t)
	ctx := context.Background()

	applied, err := appliedVersions(ctx, database.Conn())
	require.NoError(t, err)

	migrations, err := loadMigrations()
	require.NoError(t, err)
	require.NotEmpty(t, migrations)

	for _, m := range migrations {
		assert.True(t, applied[m.version], "version %d should be applied", m.version)
	}

	_, err = database.Conn().ExecContext(ctx, "SELECT key, value, version FROM kv_store LIMIT 0")
	require.NoError(t, err, "kv_store table should exist")
}

func TestMigrateUp_Idempotent(t *testing.T) {
	database := openTestDB(t)

	err := migrateUp(context.Background(), database.Conn())
	assert.NoError(t, err, "second migrateUp should be a no-op")
}

func TestMigrateUp_RejectsNewerSchema(t *testing.T) {
	dir := t.TempDir()
	database, err := Open(dir, DefaultOpenOptions())
	require.NoError(t, err)

	_, err = database.Conn().ExecContext(context.Background(),
		"INSERT INTO schema_migrations (version, name, applied_at) VALUES (9999, 'future', 0)")
	require.NoError(t, err)
	require.NoError(t, database.Close())

	_, err = Open(dir, DefaultOpenOptions())
	require.ErrorIs(t, err, ErrSchemaTooNew)
}

func TestLoadMigrations_Ordered(t *testing.T) {
	migrations, err := loadMigrations()
	require.NoError(t, err)

	for i := 1; i < len(migrations); i++ {
		assert.Less(t, migrations[i-1].version, migrations[i].version)
	}
	assert.Equal(t, "kv_store", migrations[0].name)
}

func TestParseFilename(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		version int
		migName string
		wantErr bool
	}{
		{name: "valid", input: "0001_kv_store.sql", version: 1, migName: "kv_store"},
		{name: "multi digit", input: "0012_add_index.sql", version: 12, migName: "add_index"},
		{name: "old up suffix", input: "0001_kv_store.up.sql", wantErr: true},
		{name: "not sql", input: "0001_kv_store.txt", wantErr: true},
		{name: "no name", input: "0001.sql", wantErr: true},
		{name: "bad version", input: "abc_kv.sql", wantErr: true},
		{name: "zero version", input: "0000_kv.sql", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			version, name, err := parseFilename(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.version, version)
			assert.Equal(t, tt.migName, name)
		})
	}
}
