package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"gorm.io/gorm"
)

type passthroughTx struct{}

func (passthroughTx) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}

type fakeNotificationPruner struct {
	cutoff time.Time
	called int
	err    error
}

func (f *fakeNotificationPruner) DeleteReadBefore(_ context.Context, _ *gorm.DB, cutoff time.Time) (int64, error) {
	f.called++
	f.cutoff = cutoff
	return 3, f.err
}

type fakeOutboxPruner struct {
	cutoff   time.Time
	attempts int
	err      error
}

func (f *fakeOutboxPruner) DeleteDeliveredBefore(_ context.Context, _ *gorm.DB, cutoff time.Time, terminalAttempts int) (int64, error) {
	f.cutoff = cutoff
	f.attempts = terminalAttempts
	return 7, f.err
}

func asPruneJob(t *testing.T, job Job, err error) *pruneJob {
	t.Helper()
	if err != nil {
		t.Fatalf("construct job: %v", err)
	}
	pj, ok := job.(*pruneJob)
	if !ok {
		t.Fatalf("expected *pruneJob, got %T", job)
	}
	return pj
}

func TestNotificationCleanupUsesDefaultRetention(t *testing.T) {
	now := time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC)
	repo := &fakeNotificationPruner{}
	built, err := NewNotificationCleanupJob(NotificationCleanupParams{
		Logger:     testLogger(),
		DB:         passthroughTx{},
		Repository: repo,
	})
	job := asPruneJob(t, built, err)
	job.now = func() time.Time { return now }

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if want := now.Add(-defaultNotificationRetention); !repo.cutoff.Equal(want) {
		t.Fatalf("expected cutoff %s, got %s", want, repo.cutoff)
	}
	if job.Name() != "read-notification-cleanup" {
		t.Fatalf("unexpected job name %q", job.Name())
	}
}

func TestOutboxRetentionPassesTerminalAttempts(t *testing.T) {
	now := time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC)
	repo := &fakeOutboxPruner{}
	built, err := NewOutboxRetentionJob(OutboxRetentionParams{
		Logger:           testLogger(),
		DB:               passthroughTx{},
		Repository:       repo,
		Retention:        48 * time.Hour,
		TerminalAttempts: 10,
	})
	job := asPruneJob(t, built, err)
	job.now = func() time.Time { return now }

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if want := now.Add(-48 * time.Hour); !repo.cutoff.Equal(want) {
		t.Fatalf("expected cutoff %s, got %s", want, repo.cutoff)
	}
	if repo.attempts != 10 {
		t.Fatalf("expected terminal attempts 10, got %d", repo.attempts)
	}
}

func TestPruneJobWrapsRepositoryError(t *testing.T) {
	repo := &fakeOutboxPruner{err: errors.New("boom")}
	built, err := NewOutboxRetentionJob(OutboxRetentionParams{
		Logger:           testLogger(),
		DB:               passthroughTx{},
		Repository:       repo,
		TerminalAttempts: 5,
	})
	job := asPruneJob(t, built, err)
	err = job.Run(context.Background())
	if err == nil || !errors.Is(err, repo.err) {
		t.Fatalf("expected wrapped repository error, got %v", err)
	}
}

func TestOutboxRetentionRequiresTerminalAttempts(t *testing.T) {
	if _, err := NewOutboxRetentionJob(OutboxRetentionParams{
		Logger:     testLogger(),
		DB:         passthroughTx{},
		Repository: &fakeOutboxPruner{},
	}); err == nil {
		t.Fatal("expected error without terminal attempts")
	}
}
