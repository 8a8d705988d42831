package sqlstore

import (
	"testing"

	"github.com/uptrace/bun/dialect"
)

func TestDialectForDriver(t *testing.T) {
	cases := []struct {
		driver string
		want   dialect.Name
		ok     bool
	}{
		{driver: "postgres", want: dialect.PG, ok: true},
		{driver: "postgresql", want: dialect.PG, ok: true},
		{driver: " sqlite3 ", want: dialect.SQLite, ok: true},
		{driver: "sqlite", want: dialect.SQLite, ok: true},
		{driver: "mysql", ok: false},
		{driver: "", ok: false},
	}

	for _, tc := range cases {
		resolved, err := DialectForDriver(tc.driver)
		if !tc.ok {
			if err == nil {
				t.Fatalf("expected error for driver %q", tc.driver)
			}
			continue
		}
		if err != nil {
			t.Fatalf("driver %q: %v", tc.driver, err)
		}
		if resolved.Name() != tc.want {
			t.Fatalf("driver %q: expected dialect %s, got %s", tc.driver, tc.want, resolved.Name())
		}
	}
}

func TestOpenBunDB_SQLiteMemory(t *testing.T) {
	db, err := OpenBunDB("sqlite3", "file::memory:?cache=shared")
	if err != nil {
		t.Fatalf("open bun db: %v", err)
	}
	defer db.Close()

	if _, err := db.Exec("SELECT 1"); err != nil {
		t.Fatalf("exec probe: %v", err)
	}
}

func TestOpenDB_RequiresDSN(t *testing.T) {
	if _, _, err := OpenDB("postgres", "  "); err == nil {
		t.Fatalf("expected dsn requirement error")
	}
}
