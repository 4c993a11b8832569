package ledger

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func testLedger(t *testing.T) *Ledger {
	t.Helper()
	l, err := Open(filepath.Join(t.TempDir(), "runs", "runs.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { l.Close() })
	return l
}

func TestBeginRunCreatesOpenRun(t *testing.T) {
	l := testLedger(t)
	ctx := context.Background()

	id, err := l.BeginRun(ctx, "topics.yaml", 4)
	if err != nil {
		t.Fatal(err)
	}
	if id == "" {
		t.Fatal("BeginRun returned empty id")
	}

	run, err := l.FindRun(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if run.TopicsFile != "topics.yaml" {
		t.Errorf("TopicsFile = %q, want topics.yaml", run.TopicsFile)
	}
	if run.Total != 4 {
		t.Errorf("Total = %d, want 4", run.Total)
	}
	if run.StartedAt.IsZero() {
		t.Error("StartedAt is zero")
	}
	if !run.FinishedAt.IsZero() {
		t.Errorf("FinishedAt = %v, want zero while in flight", run.FinishedAt)
	}
}

func TestFinishRunTalliesOutcomes(t *testing.T) {
	l := testLedger(t)
	ctx := context.Background()

	id, err := l.BeginRun(ctx, "topics.yaml", 3)
	if err != nil {
		t.Fatal(err)
	}

	records := []TopicRecord{
		{RunID: id, Topic: "iron deficiency", Status: StatusSucceeded, ArticlePath: "out/iron.json", Duration: 1500 * time.Millisecond},
		{RunID: id, Topic: "vitamin d", Status: StatusSucceeded, ArticlePath: "out/vitd.json"},
		{RunID: id, Topic: "magnesium", Status: StatusFailed, Error: "draft parse failed"},
	}
	for _, rec := range records {
		if err := l.RecordTopic(ctx, rec); err != nil {
			t.Fatal(err)
		}
	}
	if err := l.FinishRun(ctx, id); err != nil {
		t.Fatal(err)
	}

	run, err := l.FindRun(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if run.Succeeded != 2 {
		t.Errorf("Succeeded = %d, want 2", run.Succeeded)
	}
	if run.Failed != 1 {
		t.Errorf("Failed = %d, want 1", run.Failed)
	}
	if run.FinishedAt.IsZero() {
		t.Error("FinishedAt is zero after FinishRun")
	}
}

func TestFailedTopicsKeepsRecordingOrder(t *testing.T) {
	l := testLedger(t)
	ctx := context.Background()

	id, err := l.BeginRun(ctx, "topics.yaml", 3)
	if err != nil {
		t.Fatal(err)
	}

	for _, rec := range []TopicRecord{
		{RunID: id, Topic: "zinc", Status: StatusFailed, Error: "timeout"},
		{RunID: id, Topic: "calcium", Status: StatusSucceeded},
		{RunID: id, Topic: "b12", Status: StatusFailed, Error: "validation"},
	} {
		if err := l.RecordTopic(ctx, rec); err != nil {
			t.Fatal(err)
		}
	}

	failed, err := l.FailedTopics(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if len(failed) != 2 || failed[0] != "zinc" || failed[1] != "b12" {
		t.Errorf("FailedTopics = %v, want [zinc b12]", failed)
	}
}

func TestFailedTopicsEmptyForCleanRun(t *testing.T) {
	l := testLedger(t)
	ctx := context.Background()

	id, err := l.BeginRun(ctx, "topics.yaml", 1)
	if err != nil {
		t.Fatal(err)
	}
	if err := l.RecordTopic(ctx, TopicRecord{RunID: id, Topic: "iron", Status: StatusSucceeded}); err != nil {
		t.Fatal(err)
	}

	failed, err := l.FailedTopics(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if len(failed) != 0 {
		t.Errorf("FailedTopics = %v, want none", failed)
	}
}

func TestRunsNewestFirst(t *testing.T) {
	l := testLedger(t)
	ctx := context.Background()

	first, err := l.BeginRun(ctx, "a.yaml", 1)
	if err != nil {
		t.Fatal(err)
	}
	time.Sleep(5 * time.Millisecond)
	second, err := l.BeginRun(ctx, "b.yaml", 1)
	if err != nil {
		t.Fatal(err)
	}

	runs, err := l.Runs(ctx, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 2 {
		t.Fatalf("len(runs) = %d, want 2", len(runs))
	}
	if runs[0].ID != second || runs[1].ID != first {
		t.Errorf("order = [%s %s], want newest first", runs[0].ID, runs[1].ID)
	}

	limited, err := l.Runs(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(limited) != 1 || limited[0].ID != second {
		t.Errorf("Runs(1) = %v, want just the newest", limited)
	}
}

func TestFindRunByPrefix(t *testing.T) {
	l := testLedger(t)
	ctx := context.Background()

	id, err := l.BeginRun(ctx, "topics.yaml", 1)
	if err != nil {
		t.Fatal(err)
	}

	run, err := l.FindRun(ctx, id[:8])
	if err != nil {
		t.Fatal(err)
	}
	if run.ID != id {
		t.Errorf("FindRun(%q).ID = %q, want %q", id[:8], run.ID, id)
	}

	if _, err := l.FindRun(ctx, "zzzzzzzz"); err == nil {
		t.Error("expected error for unknown run id")
	}
}

func TestFindRunAmbiguousPrefix(t *testing.T) {
	l := testLedger(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := l.BeginRun(ctx, "topics.yaml", 1); err != nil {
			t.Fatal(err)
		}
	}

	if _, err := l.FindRun(ctx, ""); err == nil {
		t.Error("expected ambiguity error for empty prefix")
	}
}

func TestTopicsRoundTrip(t *testing.T) {
	l := testLedger(t)
	ctx := context.Background()

	id, err := l.BeginRun(ctx, "topics.yaml", 1)
	if err != nil {
		t.Fatal(err)
	}
	want := TopicRecord{
		RunID:       id,
		Topic:       "iron deficiency",
		Status:      StatusFailed,
		ArticlePath: "",
		Error:       "edit step: retries exhausted",
		Duration:    2300 * time.Millisecond,
	}
	if err := l.RecordTopic(ctx, want); err != nil {
		t.Fatal(err)
	}

	recs, err := l.Topics(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 1 {
		t.Fatalf("len(recs) = %d, want 1", len(recs))
	}
	if recs[0] != want {
		t.Errorf("record = %+v, want %+v", recs[0], want)
	}
}

func TestOpenCreatesParentDirectories(t *testing.T) {
	path := filepath.Join(t.TempDir(), "deep", "nested", "runs.db")
	l, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer l.Close()

	if _, err := l.BeginRun(context.Background(), "topics.yaml", 0); err != nil {
		t.Fatal(err)
	}
}
