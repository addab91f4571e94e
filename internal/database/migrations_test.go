package database

import (
	"strings"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrationFilesSorted(t *testing.T) {
	fsys := fstest.MapFS{
		"migrations/002_indexes.sql": {Data: []byte("SELECT 1;")},
		"migrations/001_init.sql":    {Data: []byte("SELECT 1;")},
		"migrations/README.md":       {Data: []byte("notes")},
	}

	files, err := migrationFiles(fsys)
	require.NoError(t, err)
	assert.Equal(t, []string{"001_init.sql", "002_indexes.sql"}, files)
}

func TestEmbeddedSchemaGuardsLedger(t *testing.T) {
	files, err := migrationFiles(migrationFS)
	require.NoError(t, err)
	require.NotEmpty(t, files)

	content, err := migrationFS.ReadFile("migrations/" + files[0])
	require.NoError(t, err)
	schema := string(content)

	assert.Contains(t, schema, "CHECK (quantity >= 0)")
	assert.Contains(t, schema, "CHECK (is_available = (quantity > 0))")
	assert.True(t, strings.Contains(schema, "gateway_order_id    VARCHAR(100) NOT NULL UNIQUE"))
	assert.Contains(t, schema, "order_status_log")
}

func TestReserveStatementIsConditional(t *testing.T) {
	assert.Contains(t, ReserveItemSQL, "is_available AND quantity >= $3")
	assert.Contains(t, ReserveItemSQL, "is_available = (quantity - $3) > 0")
	assert.Contains(t, TransitionOrderSQL, "status = ANY($4)")
	assert.Contains(t, MarkTransactionPaidSQL, "status = 'created'")
}
