package db

import (
	"errors"
	"strings"
	"testing"
)

func TestIsBusyError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"sqlite busy code", errors.New("SQLITE_BUSY: database table is locked"), true},
		{"locked message", errors.New("database is locked (5)"), true},
		{"syntax error", errors.New("near \"SELEC\": syntax error"), false},
		{"constraint violation", errors.New("UNIQUE constraint failed: exclusions.item_id"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isBusyError(tt.err); got != tt.want {
				t.Errorf("isBusyError(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestExecWithRetrySucceeds(t *testing.T) {
	repo := newTestRepository(t)

	result, err := ExecWithRetry(repo.DB,
		"INSERT INTO exclusions (item_id, title) VALUES (?, ?)", "jf-42", "Blade Runner")
	if err != nil {
		t.Fatalf("ExecWithRetry() error: %v", err)
	}
	affected, _ := result.RowsAffected()
	if affected != 1 {
		t.Errorf("RowsAffected() = %d, want 1", affected)
	}
}

func TestExecWithRetryNonBusyErrorImmediate(t *testing.T) {
	repo := newTestRepository(t)

	_, err := ExecWithRetry(repo.DB, "INSERT INTO no_such_table (x) VALUES (1)")
	if err == nil {
		t.Fatal("expected error for missing table")
	}
	if strings.Contains(err.Error(), "retries") {
		t.Errorf("non-busy error should not be retried, got: %v", err)
	}
}

func TestQueryWithRetrySucceeds(t *testing.T) {
	repo := newTestRepository(t)

	if _, err := repo.DB.Exec(
		"INSERT INTO exclusions (item_id, title) VALUES ('jf-1', 'Alien')"); err != nil {
		t.Fatalf("insert failed: %v", err)
	}

	rows, err := QueryWithRetry(repo.DB, "SELECT item_id FROM exclusions")
	if err != nil {
		t.Fatalf("QueryWithRetry() error: %v", err)
	}
	defer rows.Close()

	var count int
	for rows.Next() {
		count++
	}
	if count != 1 {
		t.Errorf("row count = %d, want 1", count)
	}
}
