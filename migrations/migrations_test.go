package migrations

import (
	"database/sql"
	"testing"

	"github.com/google/go-cmp/cmp"
	_ "modernc.org/sqlite"
)

func openDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func tables(t *testing.T, db *sql.DB) []string {
	t.Helper()
	rows, err := db.Query(`SELECT name FROM sqlite_master
		WHERE type = 'table' AND name NOT LIKE 'sqlite_%' AND name != 'goose_db_version'
		ORDER BY name`)
	if err != nil {
		t.Fatalf("list tables: %v", err)
	}
	defer func() { _ = rows.Close() }()

	var names []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			t.Fatalf("scan: %v", err)
		}
		names = append(names, n)
	}
	if err := rows.Err(); err != nil {
		t.Fatalf("rows: %v", err)
	}
	return names
}

func TestRun(t *testing.T) {
	db := openDB(t)
	if err := Run(db); err != nil {
		t.Fatalf("run: %v", err)
	}
	// A second run has nothing to apply.
	if err := Run(db); err != nil {
		t.Fatalf("second run: %v", err)
	}

	want := []string{
		"blocklist",
		"daily_summaries",
		"ip_contact_history",
		"notices",
		"outreach_contacts",
		"qualification_decisions",
		"send_events",
	}
	if diff := cmp.Diff(want, tables(t, db)); diff != "" {
		t.Errorf("tables mismatch (-want +got):\n%s", diff)
	}

	v, err := Version(db)
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	if v != 2 {
		t.Errorf("version = %d, want 2", v)
	}
}

func TestCommandDownAndReset(t *testing.T) {
	db := openDB(t)
	if err := Run(db); err != nil {
		t.Fatalf("run: %v", err)
	}

	if err := Command(db, "down"); err != nil {
		t.Fatalf("down: %v", err)
	}
	if v, err := Version(db); err != nil || v != 1 {
		t.Errorf("version after down = %d, %v, want 1", v, err)
	}
	if got := tables(t, db); len(got) != 7 {
		t.Errorf("tables after down = %v, want the initial schema", got)
	}

	if err := Command(db, "reset"); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if got := tables(t, db); len(got) != 0 {
		t.Errorf("tables after reset = %v", got)
	}
	if v, err := Version(db); err != nil || v != 0 {
		t.Errorf("version after reset = %d, %v, want 0", v, err)
	}

	if err := Command(db, "sideways"); err == nil {
		t.Error("expected error for unknown command")
	}
}
