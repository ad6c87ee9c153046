package surrealdb

import (
	"context"
	"testing"

	"github.com/forumdesk/foyer/internal/common"
	tcommon "github.com/forumdesk/foyer/tests/common"
	surreal "github.com/surrealdb/surrealdb.go"
)

// testDB opens an isolated database on the shared SurrealDB container
// and applies the schema.
func testDB(t *testing.T) *surreal.DB {
	t.Helper()

	db := tcommon.StartSurrealDB(t).OpenDatabase(t)
	if err := defineSchema(context.Background(), db); err != nil {
		t.Fatalf("define schema: %v", err)
	}
	return db
}

// testLogger returns a silent logger for tests.
func testLogger() *common.Logger {
	return common.NewSilentLogger()
}
