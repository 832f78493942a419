package cmd

import "testing"

func TestSQLDriverName(t *testing.T) {
	tests := []struct {
		url  string
		want string
	}{
		{"postgresql://localhost:5432/app", "postgres"},
		{"postgres://localhost:5432/app", "postgres"},
		{"libsql://app.turso.io", "libsql"},
		{"sqlite://./app.db", "sqlite"},
		{"file:app.db", "sqlite"},
		{"./app.db", "sqlite"},
		{"/var/data/app.sqlite3", "sqlite"},
		{":memory:", "sqlite"},
	}

	for _, tt := range tests {
		if got := sqlDriverName(tt.url); got != tt.want {
			t.Errorf("sqlDriverName(%q) = %q, want %q", tt.url, got, tt.want)
		}
	}
}

func TestIsSQLiteConnection(t *testing.T) {
	for _, url := range []string{":memory:", "sqlite://x.db", "file:x.db", "a.db", "a.sqlite", "a.sqlite3"} {
		if !isSQLiteConnection(url) {
			t.Errorf("expected %q to be sqlite", url)
		}
	}
	for _, url := range []string{"postgresql://h/db", "libsql://app.turso.io", "mysql://h/db"} {
		if isSQLiteConnection(url) {
			t.Errorf("expected %q not to be sqlite", url)
		}
	}
}

func TestSqliteDSN(t *testing.T) {
	if got := sqliteDSN("sqlite:///var/app.db"); got != "/var/app.db" {
		t.Errorf("got %q", got)
	}
	if got := sqliteDSN("./app.db"); got != "./app.db" {
		t.Errorf("got %q", got)
	}
}
