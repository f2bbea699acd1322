package postgres

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractUpMigration(t *testing.T) {
	content := "-- +migrate Up\nCREATE TABLE a (id INT);\n-- +migrate Down\nDROP TABLE a;\n"
	assert.Equal(t, "\nCREATE TABLE a (id INT);\n", ExtractUpMigration(content))
	assert.Equal(t, "SELECT 1;", ExtractUpMigration("SELECT 1;"))
	assert.Equal(t, "\nSELECT 1;", ExtractUpMigration("-- +migrate Up\nSELECT 1;"))
}

func TestEmbeddedMigrations(t *testing.T) {
	files, err := migrationFiles()
	require.NoError(t, err)
	assert.Equal(t, []string{"0001_documents.sql", "0002_outbox.sql"}, files)

	for _, name := range files {
		raw, err := migrationFS.ReadFile("migrations/" + name)
		require.NoError(t, err)
		up := ExtractUpMigration(string(raw))
		assert.NotContains(t, up, "DROP TABLE", name)
		assert.True(t, strings.Contains(up, "CREATE TABLE IF NOT EXISTS"), name)
	}
}
