package sqllite

import (
	"database/sql"
	"fmt"
	"os"
	"sync/atomic"
	"testing"

	"github.com/nexcrm/approvalflow/pkg/approvalflow"

	_ "github.com/mattn/go-sqlite3"
)

var fileSeq int32 = 0

// runTestWithDB gives each test its own migrated SQLite file so tests stay
// independent of each other.
func runTestWithDB(t *testing.T, testFunc func(t *testing.T, db *sql.DB)) {
	n := atomic.AddInt32(&fileSeq, 1)
	filename := fmt.Sprintf("approvalflow-test-%d.db", n)
	defer os.Remove(filename)

	os.Setenv("AFLOW_DATABASE_TYPE", "SQLLITE")
	os.Setenv("AFLOW_DATABASE_SQLLITE_FILE_NAME", filename)

	if err := approvalflow.RunMigrationsFromEmbed("sqllite", "sqlite3://"+filename); err != nil {
		t.Fatalf("Failed to run migrations: %v", err)
	}
	db, err := sql.Open("sqlite3", filename)
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	testFunc(t, db)
}
