package recorder

import (
	"os"
	"testing"
)

func setupTestRecorder(t *testing.T) *Recorder {
	t.Helper()
	fname := t.Name() + ".db"
	os.Remove(fname)

	r, err := Open(fname)
	if err != nil {
		t.Fatalf("failed to open test recorder: %v", err)
	}
	return r
}

func cleanupTestRecorder(t *testing.T, r *Recorder) {
	t.Helper()
	fname := t.Name() + ".db"
	r.Close()
	os.Remove(fname)
}

func TestNilRecorderIsANoOp(t *testing.T) {
	var r *Recorder
	if err := r.RecordSubmit(1, "get_signal", "D30"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := r.RecordOutcome(1, true, "HIGH"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out, err := r.RecentOutcomes(10); err != nil || out != nil {
		t.Fatalf("got out=%v err=%v", out, err)
	}
	if err := r.Close(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestRecordSubmitAndOutcomeRoundTrip(t *testing.T) {
	r := setupTestRecorder(t)
	defer cleanupTestRecorder(t, r)

	if err := r.RecordSubmit(1, "get_signal", "D30"); err != nil {
		t.Fatalf("RecordSubmit failed: %v", err)
	}
	if err := r.RecordOutcome(1, true, "HIGH"); err != nil {
		t.Fatalf("RecordOutcome failed: %v", err)
	}

	outcomes, err := r.RecentOutcomes(10)
	if err != nil {
		t.Fatalf("RecentOutcomes failed: %v", err)
	}
	if len(outcomes) != 1 {
		t.Fatalf("got %d outcomes, want 1", len(outcomes))
	}
	o := outcomes[0]
	if o.RequestID != 1 || o.Command != "get_signal" || o.Pin != "D30" || !o.OK || o.Detail != "HIGH" {
		t.Fatalf("got %+v", o)
	}
}

func TestRecentOutcomesOrderedNewestFirst(t *testing.T) {
	r := setupTestRecorder(t)
	defer cleanupTestRecorder(t, r)

	for i := uint64(1); i <= 3; i++ {
		if err := r.RecordSubmit(i, "get_signal", "D30"); err != nil {
			t.Fatalf("RecordSubmit failed: %v", err)
		}
		if err := r.RecordOutcome(i, true, "HIGH"); err != nil {
			t.Fatalf("RecordOutcome failed: %v", err)
		}
	}

	outcomes, err := r.RecentOutcomes(10)
	if err != nil {
		t.Fatalf("RecentOutcomes failed: %v", err)
	}
	if len(outcomes) != 3 || outcomes[0].RequestID != 3 {
		t.Fatalf("got %+v", outcomes)
	}
}
