package store

import (
	"context"
	"path/filepath"
	"testing"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestMigrationsApplyOnce(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")

	s, err := New(dbPath)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	s.Close()

	// Reopening must not re-apply migrations.
	s, err = New(dbPath)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()

	var count int
	err = s.DB().QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&count)
	if err != nil {
		t.Fatalf("query schema_migrations: %v", err)
	}
	if count != 2 {
		t.Errorf("expected 2 applied migrations, got %d", count)
	}
}

func TestWriteAndGetActions(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	err := s.WriteAction(ctx, ActionAudit{
		UserID:  "@alice:example.org",
		Author:  "Alice",
		Command: "acknowledge",
		Filter:  "webserver01 ping",
		Objects: 2,
		Result:  "success",
	})
	if err != nil {
		t.Fatalf("WriteAction: %v", err)
	}

	err = s.WriteAction(ctx, ActionAudit{
		UserID:       "@bob:example.org",
		Author:       "Bob",
		Command:      "downtime",
		Filter:       "dbserver01",
		Objects:      1,
		Result:       "error",
		ErrorMessage: "connection refused",
	})
	if err != nil {
		t.Fatalf("WriteAction: %v", err)
	}

	entries, err := s.GetActions(ctx, 10)
	if err != nil {
		t.Fatalf("GetActions: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Command != "downtime" {
		t.Errorf("expected newest entry first, got command %q", entries[0].Command)
	}
	if entries[0].ErrorMessage != "connection refused" {
		t.Errorf("unexpected error message %q", entries[0].ErrorMessage)
	}
	if entries[1].TraceID == "" {
		t.Error("expected generated trace ID")
	}

	byUser, err := s.GetActionsByUser(ctx, "@alice:example.org", 10)
	if err != nil {
		t.Fatalf("GetActionsByUser: %v", err)
	}
	if len(byUser) != 1 || byUser[0].Command != "acknowledge" {
		t.Errorf("unexpected entries for user: %+v", byUser)
	}
}

func TestParseMigrationName(t *testing.T) {
	tests := []struct {
		name        string
		wantVersion int
		wantDesc    string
		wantOK      bool
	}{
		{"0001_audit_log.sql", 1, "audit_log", true},
		{"0002_matrix_sync_state.sql", 2, "matrix_sync_state", true},
		{"README.md", 0, "", false},
		{"nounderscore.sql", 0, "", false},
	}
	for _, tt := range tests {
		version, desc, ok := parseMigrationName(tt.name)
		if version != tt.wantVersion || desc != tt.wantDesc || ok != tt.wantOK {
			t.Errorf("parseMigrationName(%q) = (%d, %q, %v), want (%d, %q, %v)",
				tt.name, version, desc, ok, tt.wantVersion, tt.wantDesc, tt.wantOK)
		}
	}
}
