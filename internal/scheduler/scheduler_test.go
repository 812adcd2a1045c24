package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/rs/zerolog"

	"content_review/internal/model"
	"content_review/internal/runner"
)

type mockPasser struct {
	mu    sync.Mutex
	calls []time.Time
	rep   runner.Report
	err   error
}

func (m *mockPasser) RunPass(_ context.Context, now time.Time) (runner.Report, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, now)
	return m.rep, m.err
}

func (m *mockPasser) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

type mockReporter struct {
	mu      sync.Mutex
	reports []runner.Report
	errs    []string
}

func (m *mockReporter) Send(_ context.Context, rep runner.Report) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reports = append(m.reports, rep)
	return nil
}

func (m *mockReporter) SendError(_ context.Context, err error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errs = append(m.errs, err.Error())
	return nil
}

func TestNewRejectsBadSchedule(t *testing.T) {
	if _, err := New("every morning", &mockPasser{}, nil, zerolog.Nop()); err == nil {
		t.Fatal("expected error for invalid schedule")
	}
}

func TestRunOnceReportsPass(t *testing.T) {
	now := time.Date(2010, 2, 24, 9, 0, 0, 0, time.UTC)
	rep := runner.Report{
		Date:     now,
		Reminder: runner.Summary{Path: model.PathReminder, Sent: 2},
	}
	passer := &mockPasser{rep: rep}
	reporter := &mockReporter{}

	s, err := New("0 9 * * *", passer, reporter, zerolog.Nop())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	s.now = func() time.Time { return now }

	s.runOnce(context.Background())

	if diff := cmp.Diff([]time.Time{now}, passer.calls); diff != "" {
		t.Errorf("pass calls mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]runner.Report{rep}, reporter.reports); diff != "" {
		t.Errorf("reports mismatch (-want +got):\n%s", diff)
	}
}

func TestRunOnceReportsFailure(t *testing.T) {
	passer := &mockPasser{err: errors.New("load settings: disk I/O error")}
	reporter := &mockReporter{}

	s, err := New("@daily", passer, reporter, zerolog.Nop())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	s.runOnce(context.Background())

	if diff := cmp.Diff([]string{"load settings: disk I/O error"}, reporter.errs); diff != "" {
		t.Errorf("error reports mismatch (-want +got):\n%s", diff)
	}
	if len(reporter.reports) != 0 {
		t.Error("failed pass should not send a report")
	}
}

func TestRunOnceWithoutReporter(t *testing.T) {
	passer := &mockPasser{}
	s, err := New("@daily", passer, nil, zerolog.Nop())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	s.runOnce(context.Background())

	if passer.callCount() != 1 {
		t.Errorf("expected 1 pass, got %d", passer.callCount())
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	passer := &mockPasser{}
	s, err := New("@daily", passer, nil, zerolog.Nop())
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx, true)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for passer.callCount() == 0 {
		select {
		case <-deadline:
			t.Fatal("start-up pass did not run")
		case <-time.After(10 * time.Millisecond):
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop after cancellation")
	}
	if passer.callCount() != 1 {
		t.Errorf("expected 1 pass, got %d", passer.callCount())
	}
}

func TestRunFiresOnSchedule(t *testing.T) {
	if testing.Short() {
		t.Skip("waits for a cron tick")
	}
	passer := &mockPasser{}
	s, err := New("@every 1s", passer, nil, zerolog.Nop())
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	go s.Run(ctx, false)

	for passer.callCount() == 0 {
		select {
		case <-ctx.Done():
			t.Fatal("no pass fired within 3s")
		case <-time.After(50 * time.Millisecond):
		}
	}
}
