package submit

import (
	"context"
	"errors"
	"testing"

	"github.com/adgrid-network/weightd/internal/storage"
)

type stubSubmitter struct {
	msg   string
	err   error
	calls int
}

func (s *stubSubmitter) Submit(_ context.Context, _ *Submission) (string, error) {
	s.calls++
	return s.msg, s.err
}

func newTestStorage(t *testing.T) *storage.Storage {
	t.Helper()
	s, err := storage.New(100, ":memory:")
	if err != nil {
		t.Fatalf("failed to create test storage: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func testSubmission() *Submission {
	return &Submission{
		IterationID: "it-1",
		Weights:     map[string]float64{"a": 0.6, "b": 0.4},
		Campaigns:   2,
	}
}

func TestDryRun(t *testing.T) {
	msg, err := DryRun{}.Submit(context.Background(), testSubmission())
	if err != nil {
		t.Fatalf("DryRun.Submit: %v", err)
	}
	if msg == "" {
		t.Error("expected a non-empty message")
	}
}

func TestRecorder_RecordsSuccess(t *testing.T) {
	store := newTestStorage(t)
	inner := &stubSubmitter{msg: "accepted"}
	rec := NewRecorder(inner, store)

	msg, err := rec.Submit(context.Background(), testSubmission())
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if msg != "accepted" {
		t.Errorf("got message %q, want %q", msg, "accepted")
	}
	if inner.calls != 1 {
		t.Errorf("inner submitter called %d times, want 1", inner.calls)
	}

	last, err := store.LastSubmission()
	if err != nil {
		t.Fatalf("LastSubmission: %v", err)
	}
	if last == nil || !last.Success || last.IterationID != "it-1" {
		t.Errorf("unexpected record: %+v", last)
	}
	if len(last.Weights) != 2 {
		t.Errorf("got %d weights, want 2", len(last.Weights))
	}
}

func TestRecorder_RecordsFailure(t *testing.T) {
	store := newTestStorage(t)
	inner := &stubSubmitter{err: errors.New("ledger unreachable")}
	rec := NewRecorder(inner, store)

	if _, err := rec.Submit(context.Background(), testSubmission()); err == nil {
		t.Fatal("expected error from inner submitter")
	}

	last, err := store.LastSubmission()
	if err != nil {
		t.Fatalf("LastSubmission: %v", err)
	}
	if last == nil || last.Success {
		t.Errorf("failure should be recorded as unsuccessful: %+v", last)
	}
	if last.Message != "ledger unreachable" {
		t.Errorf("got message %q, want inner error text", last.Message)
	}
}
