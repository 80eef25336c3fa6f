package cleanup

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"
)

type fakeResult struct {
	rowsAffected int64
}

func (r *fakeResult) LastInsertId() (int64, error) { return 0, nil }
func (r *fakeResult) RowsAffected() (int64, error) { return r.rowsAffected, nil }

type execCall struct {
	query string
	args  []interface{}
}

// mockExecutor はクエリごとに結果を返すExecutorのモック。
type mockExecutor struct {
	mu     sync.Mutex
	calls  []execCall
	execFn func(query string) (sql.Result, error)
}

func (m *mockExecutor) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	m.mu.Lock()
	m.calls = append(m.calls, execCall{query: query, args: args})
	m.mu.Unlock()
	if m.execFn != nil {
		return m.execFn(query)
	}
	return &fakeResult{}, nil
}

func (m *mockExecutor) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

// rowsByTable はテーブル名に応じて削除件数を返すexecFnを生成する。
func rowsByTable(sessions, logins int64) func(string) (sql.Result, error) {
	return func(query string) (sql.Result, error) {
		if strings.Contains(query, "FROM sessions") {
			return &fakeResult{rowsAffected: sessions}, nil
		}
		return &fakeResult{rowsAffected: logins}, nil
	}
}

type countingSweeper struct {
	calls   int
	removed int
}

func (s *countingSweeper) Sweep() int {
	s.calls++
	return s.removed
}

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
}

// findLogEntry はmsgに一致する最初のJSONログ行を返す。
func findLogEntry(t *testing.T, buf *bytes.Buffer, msg string) map[string]interface{} {
	t.Helper()
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		var entry map[string]interface{}
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			continue
		}
		if entry["msg"] == msg {
			return entry
		}
	}
	t.Fatalf("log entry %q not found in: %s", msg, buf.String())
	return nil
}

func TestNewCleanupJob_DefaultRetentionDays(t *testing.T) {
	job := NewCleanupJob(&mockExecutor{}, nil, 0)
	if job.RetentionDays != DefaultRetentionDays {
		t.Errorf("RetentionDays = %d, want %d", job.RetentionDays, DefaultRetentionDays)
	}

	job = NewCleanupJob(&mockExecutor{}, nil, 30)
	if job.RetentionDays != 30 {
		t.Errorf("RetentionDays = %d, want 30", job.RetentionDays)
	}
}

func TestCleanupJob_Run_DeletesSessionsAndLogins(t *testing.T) {
	var buf bytes.Buffer
	mock := &mockExecutor{}
	job := NewCleanupJob(mock, newTestLogger(&buf), 90)

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run() returned error: %v", err)
	}

	if len(mock.calls) != 2 {
		t.Fatalf("ExecContext calls = %d, want 2", len(mock.calls))
	}

	sessions := mock.calls[0]
	if !strings.Contains(sessions.query, "DELETE FROM sessions") || !strings.Contains(sessions.query, "expires_at < now()") {
		t.Errorf("unexpected session query: %s", sessions.query)
	}
	if len(sessions.args) != 0 {
		t.Errorf("session query args = %v, want none", sessions.args)
	}

	logins := mock.calls[1]
	if !strings.Contains(logins.query, "DELETE FROM user_logins") || !strings.Contains(logins.query, "created_at") {
		t.Errorf("unexpected login query: %s", logins.query)
	}
	if len(logins.args) != 1 || logins.args[0] != "90 days" {
		t.Errorf("login query args = %v, want [90 days]", logins.args)
	}
}

func TestCleanupJob_Run_LogsDeletedCounts(t *testing.T) {
	var buf bytes.Buffer
	mock := &mockExecutor{execFn: rowsByTable(3, 42)}
	job := NewCleanupJob(mock, newTestLogger(&buf), 90)

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run() returned error: %v", err)
	}

	entry := findLogEntry(t, &buf, "cleanup job completed")
	if entry["deleted_sessions"] != float64(3) {
		t.Errorf("deleted_sessions = %v, want 3", entry["deleted_sessions"])
	}
	if entry["deleted_logins"] != float64(42) {
		t.Errorf("deleted_logins = %v, want 42", entry["deleted_logins"])
	}
	if entry["retention_days"] != float64(90) {
		t.Errorf("retention_days = %v, want 90", entry["retention_days"])
	}
	if _, ok := entry["duration_ms"]; !ok {
		t.Error("duration_ms should be logged")
	}
}

func TestCleanupJob_Run_Idempotent_ZeroRows(t *testing.T) {
	var buf bytes.Buffer
	job := NewCleanupJob(&mockExecutor{}, newTestLogger(&buf), 90)

	for i := 0; i < 2; i++ {
		if err := job.Run(context.Background()); err != nil {
			t.Fatalf("run %d returned error: %v", i+1, err)
		}
	}

	entry := findLogEntry(t, &buf, "cleanup job completed")
	if entry["deleted_sessions"] != float64(0) {
		t.Errorf("deleted_sessions = %v, want 0", entry["deleted_sessions"])
	}
}

func TestCleanupJob_Run_SessionFailureStillCleansLogins(t *testing.T) {
	var buf bytes.Buffer
	mock := &mockExecutor{execFn: func(query string) (sql.Result, error) {
		if strings.Contains(query, "FROM sessions") {
			return nil, sql.ErrConnDone
		}
		return &fakeResult{rowsAffected: 1}, nil
	}}
	job := NewCleanupJob(mock, newTestLogger(&buf), 90)

	err := job.Run(context.Background())
	if err == nil {
		t.Fatal("expected error when session cleanup fails")
	}
	if !errors.Is(err, sql.ErrConnDone) {
		t.Errorf("error should wrap sql.ErrConnDone, got %v", err)
	}
	if !strings.Contains(err.Error(), "sessions") {
		t.Errorf("error should name the failed table, got %v", err)
	}
	if len(mock.calls) != 2 {
		t.Errorf("ExecContext calls = %d, want 2", len(mock.calls))
	}
	if !strings.Contains(buf.String(), "ERROR") {
		t.Errorf("expected ERROR level log, got: %s", buf.String())
	}
}

func TestCleanupJob_Run_CallsSweepers(t *testing.T) {
	var buf bytes.Buffer
	job := NewCleanupJob(&mockExecutor{}, newTestLogger(&buf), 90)
	s1 := &countingSweeper{removed: 2}
	s2 := &countingSweeper{removed: 5}
	job.AddSweeper(s1)
	job.AddSweeper(s2)

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run() returned error: %v", err)
	}

	if s1.calls != 1 || s2.calls != 1 {
		t.Errorf("sweeper calls = %d, %d, want 1, 1", s1.calls, s2.calls)
	}
	entry := findLogEntry(t, &buf, "cleanup job completed")
	if entry["swept_cache_entries"] != float64(7) {
		t.Errorf("swept_cache_entries = %v, want 7", entry["swept_cache_entries"])
	}
}

func TestCleanupJob_Start_RunsImmediatelyAndStopsOnCancel(t *testing.T) {
	var buf bytes.Buffer
	mock := &mockExecutor{}
	job := NewCleanupJob(mock, newTestLogger(&buf), 90)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		job.Start(ctx, time.Hour)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for mock.callCount() < 2 {
		select {
		case <-deadline:
			t.Fatal("Start did not run the job immediately")
		case <-time.After(5 * time.Millisecond):
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Start did not return after context cancel")
	}
}

func TestEvery_RepeatsUntilCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	runs := 0
	done := make(chan struct{})
	go func() {
		Every(ctx, 5*time.Millisecond, func(context.Context) {
			mu.Lock()
			runs++
			n := runs
			mu.Unlock()
			if n == 3 {
				cancel()
			}
		})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Every did not stop after cancel")
	}

	mu.Lock()
	defer mu.Unlock()
	if runs < 3 {
		t.Errorf("runs = %d, want at least 3", runs)
	}
}
