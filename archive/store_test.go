package archive

import (
	"testing"
	"time"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSaveAndListDocuments(t *testing.T) {
	s := newTestStore(t)

	docs := []Document{
		{ID: "a", Filename: "facture.png", DocumentClass: "Invoice", Confidence: 0.91, CNNConfidence: 0.85, OCRBoost: 0.06, FusionApplied: true, Keywords: "facture,total", UploadedBy: "Administrator", CreatedAt: time.Now().Add(-2 * time.Hour)},
		{ID: "b", Filename: "plan.tiff", DocumentClass: "Drawing", Confidence: 0.80, CNNConfidence: 0.80, CreatedAt: time.Now().Add(-time.Hour)},
		{ID: "c", Filename: "rapport.jpg", DocumentClass: "Report", Confidence: 0.75, CNNConfidence: 0.77, OCRBoost: -0.03, FusionApplied: true, CreatedAt: time.Now()},
	}
	for _, d := range docs {
		if err := s.SaveDocument(d); err != nil {
			t.Fatalf("SaveDocument(%s) failed: %v", d.ID, err)
		}
	}

	got, err := s.Documents(10)
	if err != nil {
		t.Fatalf("Documents failed: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 documents, got %d", len(got))
	}
	// Most recent first.
	if got[0].ID != "c" || got[2].ID != "a" {
		t.Errorf("unexpected order: %s, %s, %s", got[0].ID, got[1].ID, got[2].ID)
	}
	if !got[2].FusionApplied {
		t.Error("fusion_applied flag lost on round trip")
	}
	if got[2].Keywords != "facture,total" {
		t.Errorf("unexpected keywords: %q", got[2].Keywords)
	}
}

func TestDocumentsLimit(t *testing.T) {
	s := newTestStore(t)
	for i := 0; i < 5; i++ {
		doc := Document{
			ID:            string(rune('a' + i)),
			Filename:      "f.png",
			DocumentClass: "Receipt",
			Confidence:    0.8,
			CNNConfidence: 0.8,
			CreatedAt:     time.Now().Add(time.Duration(i) * time.Minute),
		}
		if err := s.SaveDocument(doc); err != nil {
			t.Fatalf("SaveDocument failed: %v", err)
		}
	}
	got, err := s.Documents(2)
	if err != nil {
		t.Fatalf("Documents failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 documents, got %d", len(got))
	}
}

func TestStatistics(t *testing.T) {
	s := newTestStore(t)

	empty, err := s.Statistics()
	if err != nil {
		t.Fatalf("Statistics on empty store failed: %v", err)
	}
	if empty.Total != 0 || empty.AvgConfidence != 0 {
		t.Errorf("expected zero stats, got %+v", empty)
	}

	for i, d := range []Document{
		{DocumentClass: "Invoice", Confidence: 0.90},
		{DocumentClass: "Invoice", Confidence: 0.80},
		{DocumentClass: "Drawing", Confidence: 0.70},
	} {
		d.ID = string(rune('a' + i))
		d.Filename = "f.png"
		if err := s.SaveDocument(d); err != nil {
			t.Fatalf("SaveDocument failed: %v", err)
		}
	}

	stats, err := s.Statistics()
	if err != nil {
		t.Fatalf("Statistics failed: %v", err)
	}
	if stats.Total != 3 {
		t.Errorf("expected total 3, got %d", stats.Total)
	}
	if stats.ByClass["Invoice"] != 2 || stats.ByClass["Drawing"] != 1 {
		t.Errorf("unexpected class counts: %v", stats.ByClass)
	}
	want := (0.90 + 0.80 + 0.70) / 3
	if diff := stats.AvgConfidence - want; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("expected avg confidence %.4f, got %.4f", want, stats.AvgConfidence)
	}
}

func TestRequestLog(t *testing.T) {
	s := newTestStore(t)

	entries := []RequestLog{
		{Method: "POST", Endpoint: "/api/v1/classify-multi", ClientIP: "10.0.0.1", StatusCode: 200, Duration: 120 * time.Millisecond},
		{Method: "GET", Endpoint: "/api/v1/status", ClientIP: "10.0.0.2", StatusCode: 200, Duration: 2 * time.Millisecond},
	}
	for _, e := range entries {
		if err := s.LogRequest(e); err != nil {
			t.Fatalf("LogRequest failed: %v", err)
		}
	}

	n, err := s.RequestCount()
	if err != nil {
		t.Fatalf("RequestCount failed: %v", err)
	}
	if n != 2 {
		t.Errorf("expected 2 logged requests, got %d", n)
	}
}

func TestDuplicateIDRejected(t *testing.T) {
	s := newTestStore(t)

	doc := Document{ID: "dup", Filename: "f.png", DocumentClass: "Report", Confidence: 0.8, CNNConfidence: 0.8}
	if err := s.SaveDocument(doc); err != nil {
		t.Fatalf("first SaveDocument failed: %v", err)
	}
	if err := s.SaveDocument(doc); err == nil {
		t.Fatal("expected error on duplicate primary key")
	}
}
