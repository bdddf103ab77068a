package database

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/TobiSchelling/surveylens/internal/survey"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func ptr(s string) *string { return &s }

func createRun(t *testing.T, db *DB) *Run {
	t.Helper()
	r := &Run{SourceFile: "survey.csv", TextField: "comment", DateField: ptr("date"), Headers: []string{"comment", "date", "region"}, Total: 3}
	if err := db.CreateRun(r); err != nil {
		t.Fatalf("CreateRun: %v", err)
	}
	return r
}

func TestNewRunIDIsUnique(t *testing.T) {
	a, b := NewRunID(), NewRunID()
	if a == b {
		t.Errorf("expected distinct IDs, got %s twice", a)
	}
	if len(a) != 26 {
		t.Errorf("expected 26 character ULID, got %q", a)
	}
}

func TestCreateAndGetRun(t *testing.T) {
	db := openTestDB(t)
	r := createRun(t, db)
	if r.ID == "" {
		t.Fatal("expected ID to be assigned")
	}

	got, err := db.GetRun(r.ID)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if got == nil {
		t.Fatal("expected run")
	}
	if got.Status != StatusRunning {
		t.Errorf("expected status running, got %s", got.Status)
	}
	if len(got.Headers) != 3 || got.Headers[2] != "region" {
		t.Errorf("unexpected headers %v", got.Headers)
	}
	if got.DateField == nil || *got.DateField != "date" {
		t.Errorf("unexpected date field %v", got.DateField)
	}

	missing, err := db.GetRun("nope")
	if err != nil || missing != nil {
		t.Errorf("expected nil, nil for missing run, got %v, %v", missing, err)
	}
}

func TestRunProgressAndFinish(t *testing.T) {
	db := openTestDB(t)
	r := createRun(t, db)

	if err := db.UpdateRunProgress(r.ID, 2, 1); err != nil {
		t.Fatalf("UpdateRunProgress: %v", err)
	}
	if err := db.FinishRun(r.ID, StatusCancelled); err != nil {
		t.Fatalf("FinishRun: %v", err)
	}

	got, _ := db.GetRun(r.ID)
	if got.Processed != 2 || got.AmbiguousDates != 1 {
		t.Errorf("unexpected progress %d/%d", got.Processed, got.AmbiguousDates)
	}
	if got.Status != StatusCancelled || got.FinishedAt == nil {
		t.Errorf("expected finished cancelled run, got %s %v", got.Status, got.FinishedAt)
	}
}

func TestResponsesRoundTrip(t *testing.T) {
	db := openTestDB(t)
	r := createRun(t, db)

	day := time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC)
	records := []survey.ClassifiedRecord{
		{
			Record: survey.Record{RowID: 2, Values: map[string]string{"comment": "Great", "date": "2024-01-05"}},
			Date:   &day,
			Classification: &survey.Classification{
				Sentiment: survey.SentimentPositive,
				Topics:    []string{"Product", "Quality"},
				Emotions:  []string{"joy"},
			},
		},
		{
			Record: survey.Record{RowID: 3, Values: map[string]string{"comment": "?"}},
			Error:  "Rate limited",
		},
	}
	// Insert out of order; seq decides read order.
	if err := db.InsertResponse(r.ID, 1, records[1]); err != nil {
		t.Fatalf("InsertResponse: %v", err)
	}
	if err := db.InsertResponse(r.ID, 0, records[0]); err != nil {
		t.Fatalf("InsertResponse: %v", err)
	}

	got, err := db.GetResponses(r.ID)
	if err != nil {
		t.Fatalf("GetResponses: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 responses, got %d", len(got))
	}
	if got[0].RowID != 2 || got[1].RowID != 3 {
		t.Errorf("unexpected order %d, %d", got[0].RowID, got[1].RowID)
	}
	if got[0].Date == nil || !got[0].Date.Equal(day) {
		t.Errorf("unexpected date %v", got[0].Date)
	}
	if got[0].Classification == nil || got[0].Classification.MainTopic() != "Product" {
		t.Errorf("unexpected classification %+v", got[0].Classification)
	}
	if got[1].Classification != nil || got[1].Error != "Rate limited" {
		t.Errorf("unexpected error record %+v", got[1])
	}
	if v, _ := got[0].Value("comment"); v != "Great" {
		t.Errorf("expected field value Great, got %q", v)
	}
}

func TestListFindAndDeleteRuns(t *testing.T) {
	db := openTestDB(t)
	first := createRun(t, db)
	second := createRun(t, db)
	if err := db.InsertResponse(second.ID, 0, survey.ClassifiedRecord{Record: survey.Record{RowID: 2}}); err != nil {
		t.Fatalf("InsertResponse: %v", err)
	}

	runs, err := db.ListRuns(0)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("expected 2 runs, got %d", len(runs))
	}

	found, err := db.FindRun(first.ID)
	if err != nil || found == nil || found.ID != first.ID {
		t.Errorf("FindRun by full ID: %v, %v", found, err)
	}
	latest, err := db.FindRun("latest")
	if err != nil || latest == nil || latest.ID != runs[0].ID {
		t.Errorf("FindRun latest: %v, %v", latest, err)
	}
	if _, err := db.FindRun(""); !errors.Is(err, ErrAmbiguousRunID) {
		t.Errorf("expected ambiguous prefix error, got %v", err)
	}

	deleted, err := db.DeleteRun(second.ID)
	if err != nil || !deleted {
		t.Fatalf("DeleteRun: %v, %v", deleted, err)
	}
	responses, _ := db.GetResponses(second.ID)
	if len(responses) != 0 {
		t.Errorf("expected responses to cascade, got %d", len(responses))
	}
	deleted, _ = db.DeleteRun(second.ID)
	if deleted {
		t.Error("expected second delete to report false")
	}
}

func TestGetStats(t *testing.T) {
	db := openTestDB(t)
	stats, err := db.GetStats()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stats.Runs != 0 {
		t.Errorf("expected 0 runs, got %d", stats.Runs)
	}

	r := createRun(t, db)
	db.InsertResponse(r.ID, 0, survey.ClassifiedRecord{Record: survey.Record{RowID: 2}, Classification: &survey.Classification{}})
	db.InsertResponse(r.ID, 1, survey.ClassifiedRecord{Record: survey.Record{RowID: 3}, Error: "x"})
	db.FinishRun(r.ID, StatusCompleted)

	stats, _ = db.GetStats()
	if stats.Runs != 1 || stats.CompletedRuns != 1 {
		t.Errorf("unexpected run counts %+v", stats)
	}
	if stats.Responses != 2 || stats.Classified != 1 || stats.Errored != 1 {
		t.Errorf("unexpected response counts %+v", stats)
	}
}
