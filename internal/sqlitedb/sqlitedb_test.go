package sqlitedb_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"docflow/internal/sqlitedb"
)

func TestEnsureSchemaCreatesAndVerifies(t *testing.T) {
	db, err := sqlitedb.Open(filepath.Join(t.TempDir(), "nested", "test.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer db.Close()

	ctx := context.Background()
	ddl := `CREATE TABLE widgets (id INTEGER PRIMARY KEY, name TEXT NOT NULL);
CREATE INDEX idx_widgets_name ON widgets(name);`
	if err := sqlitedb.EnsureSchema(ctx, db, "widgets", 1, ddl); err != nil {
		t.Fatalf("EnsureSchema failed: %v", err)
	}
	if err := sqlitedb.EnsureSchema(ctx, db, "widgets", 1, ddl); err != nil {
		t.Fatalf("second EnsureSchema failed: %v", err)
	}
	if _, err := sqlitedb.Exec(ctx, db, "INSERT INTO widgets (name) VALUES (?)", "a"); err != nil {
		t.Fatalf("insert failed: %v", err)
	}

	err = sqlitedb.EnsureSchema(ctx, db, "widgets", 2, ddl)
	if !errors.Is(err, sqlitedb.ErrSchemaMismatch) {
		t.Fatalf("expected schema mismatch, got %v", err)
	}
}

func TestRetryOnBusyStopsOnOtherErrors(t *testing.T) {
	calls := 0
	sentinel := errors.New("boom")
	err := sqlitedb.RetryOnBusy(context.Background(), func() error {
		calls++
		return sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("expected sentinel error, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected a single call, got %d", calls)
	}
}

func TestRetryOnBusyRetriesBusy(t *testing.T) {
	calls := 0
	err := sqlitedb.RetryOnBusy(context.Background(), func() error {
		calls++
		if calls < 3 {
			return errors.New("database is locked (5) (SQLITE_BUSY)")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected success after retries, got %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 calls, got %d", calls)
	}
}

func TestTimeRoundTripSortsLexically(t *testing.T) {
	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	later := base.Add(100 * time.Millisecond)
	a, b := sqlitedb.FormatTime(base), sqlitedb.FormatTime(later)
	if !(a < b) {
		t.Fatalf("expected %q < %q", a, b)
	}
	parsed, err := sqlitedb.ParseTime(b)
	if err != nil {
		t.Fatalf("ParseTime failed: %v", err)
	}
	if !parsed.Equal(later) {
		t.Fatalf("round trip mismatch: %s vs %s", parsed, later)
	}
	if sqlitedb.ParseTimePtr("") != nil {
		t.Fatal("expected nil for empty timestamp")
	}
}

func TestPlaceholders(t *testing.T) {
	if got := sqlitedb.Placeholders(3); got != "?,?,?" {
		t.Fatalf("unexpected placeholders: %q", got)
	}
	if got := sqlitedb.Placeholders(0); got != "" {
		t.Fatalf("expected empty placeholders, got %q", got)
	}
}
