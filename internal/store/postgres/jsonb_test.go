package postgres

import (
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/deltasync/internal/domain"
)

func TestDecodeBrokerPairs(t *testing.T) {
	pairs, err := decodeBrokerPairs([]byte(`[["NY_A","LONDON1"],["NY_B","NY_A"]]`))
	require.NoError(t, err)
	assert.Equal(t, []domain.BrokerPair{{"NY_A", "LONDON1"}, {"NY_B", "NY_A"}}, pairs)

	_, err = decodeBrokerPairs([]byte(`[["NY_A"]]`))
	require.Error(t, err)

	pairs, err = decodeBrokerPairs(nil)
	require.NoError(t, err)
	assert.Nil(t, pairs)
}

func TestIDs(t *testing.T) {
	raw, err := encodeIDs(nil)
	require.NoError(t, err)
	assert.JSONEq(t, `[]`, string(raw))

	ids, err := decodeIDs([]byte(`[]`))
	require.NoError(t, err)
	assert.Nil(t, ids)

	ids, err = decodeIDs([]byte(`["a","b"]`))
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, ids)

	assert.Equal(t, []string{"x", "y"}, deltaIDs([]domain.DeltaEvent{{ID: "x"}, {ID: "y"}}))
}

func TestDSN(t *testing.T) {
	assert.Equal(t, "postgres://u:p@db:5432/deltas?sslmode=disable",
		DSN(ClientConfig{Host: "db", Database: "deltas", User: "u", Password: "p"}))
	assert.Equal(t, "postgres://explicit", DSN(ClientConfig{DSN: "postgres://explicit", Host: "ignored"}))
}

func TestMigrationNames(t *testing.T) {
	fsys := fstest.MapFS{
		"migrations/002_audit.sql": {Data: []byte("SELECT 1;")},
		"migrations/001_init.sql":  {Data: []byte("SELECT 1;")},
		"migrations/README.md":     {Data: []byte("notes")},
		"migrations/old/000_x.sql": {Data: []byte("SELECT 1;")},
	}
	names, err := migrationNames(fsys)
	require.NoError(t, err)
	assert.Equal(t, []string{"001_init.sql", "002_audit.sql"}, names)

	_, err = migrationNames(fstest.MapFS{})
	require.Error(t, err)
}

func TestPendingMigrations(t *testing.T) {
	names := []string{"001_init.sql", "002_audit.sql", "003_matches.sql"}
	assert.Equal(t, []string{"002_audit.sql", "003_matches.sql"}, pendingMigrations(names, []string{"001_init.sql"}))
	assert.Equal(t, names, pendingMigrations(names, nil))
	assert.Empty(t, pendingMigrations(names, names))
}

func TestEmbeddedMigrations(t *testing.T) {
	names, err := migrationNames(migrationsFS)
	require.NoError(t, err)
	assert.Contains(t, names, "001_reconciliation.sql")
}
