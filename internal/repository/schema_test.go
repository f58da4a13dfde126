package repository

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadTableDefinition(t *testing.T, table string) string {
	t.Helper()
	raw, err := os.ReadFile(filepath.Join("..", "..", "migrations", "0001_registrar.sql"))
	require.NoError(t, err)
	block := regexp.MustCompile(`(?s)CREATE TABLE IF NOT EXISTS ` + table + ` \((.*?)\n\);`).FindStringSubmatch(string(raw))
	require.Len(t, block, 2, "table %s not found in migration", table)
	return block[1]
}

func columnDefinition(t *testing.T, table, column string) string {
	t.Helper()
	for _, line := range strings.Split(loadTableDefinition(t, table), "\n") {
		fields := strings.Fields(line)
		if len(fields) > 0 && fields[0] == column {
			return line
		}
	}
	t.Fatalf("column %s.%s not found", table, column)
	return ""
}

// Application transitions store the application id in request_id, so the column must stay a loose reference.
func TestNotificationRequestIDHasNoForeignKey(t *testing.T) {
	def := columnDefinition(t, "notifications", "request_id")
	assert.NotContains(t, strings.ToUpper(def), "REFERENCES")
	assert.NotContains(t, strings.ToUpper(def), "NOT NULL")
}

func TestNotificationInsertMatchesSchema(t *testing.T) {
	for _, column := range []string{"id", "user_id", "request_id", "message", "is_read", "created_at"} {
		columnDefinition(t, "notifications", column)
	}
}

func TestEnrollmentPairIsUnique(t *testing.T) {
	assert.Contains(t, loadTableDefinition(t, "enrollments"), "UNIQUE (student_id, schedule_id)")
}
