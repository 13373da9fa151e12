package cron

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/angelmondragon/tokenizr-backend/pkg/logger"
)

type fakeLock struct {
	acquired bool
	releases int
}

func (f *fakeLock) Acquire(context.Context) (bool, error) {
	if f.acquired {
		return false, nil
	}
	f.acquired = true
	return true, nil
}

func (f *fakeLock) Release(context.Context) error {
	f.acquired = false
	f.releases++
	return nil
}

type testJob struct {
	name string
	err  error
	runs int
}

func (t *testJob) Name() string { return t.name }

func (t *testJob) Run(context.Context) error {
	t.runs++
	return t.err
}

type recordedRun struct {
	job    string
	failed bool
}

type fakeRecorder struct {
	runs []recordedRun
}

func (f *fakeRecorder) ObserveJob(job string, err error, _ time.Duration) {
	f.runs = append(f.runs, recordedRun{job: job, failed: err != nil})
}

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "cron-test", Output: io.Discard})
}

func TestServiceRunCycleRunsAllJobsEvenOnFailure(t *testing.T) {
	ok := &testJob{name: "success"}
	failing := &testJob{name: "fail", err: errors.New("boom")}
	rec := &fakeRecorder{}
	lock := &fakeLock{}
	service, err := NewService(ServiceParams{
		Logger:  testLogger(),
		Jobs:    []Job{ok, nil, failing},
		Lock:    lock,
		Metrics: rec,
	})
	if err != nil {
		t.Fatalf("construct service: %v", err)
	}
	if got := len(service.Jobs()); got != 2 {
		t.Fatalf("expected nil job to be dropped, got %d jobs", got)
	}

	if err := service.runCycle(context.Background()); err != nil {
		t.Fatalf("run cycle: %v", err)
	}
	if ok.runs != 1 || failing.runs != 1 {
		t.Fatalf("expected each job to run once, got %d and %d", ok.runs, failing.runs)
	}
	if lock.releases != 1 {
		t.Fatalf("expected lock released once, got %d", lock.releases)
	}
	want := []recordedRun{{job: "success"}, {job: "fail", failed: true}}
	if len(rec.runs) != len(want) {
		t.Fatalf("expected %d recorded runs, got %d", len(want), len(rec.runs))
	}
	for i := range want {
		if rec.runs[i] != want[i] {
			t.Fatalf("run %d: expected %+v, got %+v", i, want[i], rec.runs[i])
		}
	}
}

func TestServiceSkipsCycleWhenLockHeld(t *testing.T) {
	job := &testJob{name: "prune"}
	service, err := NewService(ServiceParams{
		Logger: testLogger(),
		Jobs:   []Job{job},
		Lock:   &fakeLock{acquired: true},
	})
	if err != nil {
		t.Fatalf("construct service: %v", err)
	}
	if err := service.runCycle(context.Background()); err != nil {
		t.Fatalf("run cycle: %v", err)
	}
	if job.runs != 0 {
		t.Fatalf("expected job to be skipped, ran %d times", job.runs)
	}
}

func TestServiceRunStopsOnCancel(t *testing.T) {
	service, err := NewService(ServiceParams{
		Logger:   testLogger(),
		Jobs:     []Job{&testJob{name: "prune"}},
		Lock:     &fakeLock{},
		Interval: time.Hour,
	})
	if err != nil {
		t.Fatalf("construct service: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := service.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
