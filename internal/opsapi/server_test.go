package opsapi

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bytedance/sonic"

	"github.com/adgrid-network/weightd/internal/models"
	"github.com/adgrid-network/weightd/internal/storage"
)

type stubPhases struct{ phase string }

func (s stubPhases) Phase() string { return s.phase }

func newTestServer(t *testing.T) (*Server, *storage.Storage) {
	t.Helper()
	store, err := storage.New(100, ":memory:")
	if err != nil {
		t.Fatalf("failed to create test storage: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return New(":0", store, nil, stubPhases{phase: "idle"}), store
}

func TestHealthz(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	srv.httpSrv.Handler.ServeHTTP(rec, httptest.NewRequest("GET", "/healthz", nil))

	if rec.Code != 200 {
		t.Errorf("status=%d, want 200", rec.Code)
	}
}

func TestStatus_Empty(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	srv.httpSrv.Handler.ServeHTTP(rec, httptest.NewRequest("GET", "/status", nil))

	if rec.Code != 200 {
		t.Fatalf("status=%d, want 200", rec.Code)
	}
	var resp statusResponse
	if err := sonic.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Phase != "idle" {
		t.Errorf("phase=%q, want idle", resp.Phase)
	}
	if resp.LastIteration != nil {
		t.Error("expected no last iteration on a fresh store")
	}
}

func TestStatus_WithHistory(t *testing.T) {
	srv, store := newTestServer(t)

	now := time.Now()
	rec := &models.IterationRecord{
		ID:         "it-1",
		StartedAt:  now,
		FinishedAt: now.Add(time.Second),
		Outcome:    models.OutcomeSubmitted,
		Campaigns:  1,
		Submitted:  true,
		Message:    "ok",
	}
	results := []models.CampaignResult{{
		IterationID:  "it-1",
		Scope:        "retail-eu",
		MinersScored: 3,
		Included:     true,
		Weights:      map[string]float64{"a": 1.0},
	}}
	if err := store.RecordIteration(rec, results); err != nil {
		t.Fatalf("RecordIteration: %v", err)
	}

	w := httptest.NewRecorder()
	srv.httpSrv.Handler.ServeHTTP(w, httptest.NewRequest("GET", "/status", nil))

	var resp statusResponse
	if err := sonic.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.LastIteration == nil || resp.LastIteration.ID != "it-1" {
		t.Fatalf("unexpected last iteration: %+v", resp.LastIteration)
	}
	if len(resp.Campaigns) != 1 || resp.Campaigns[0].Scope != "retail-eu" {
		t.Errorf("unexpected campaigns: %+v", resp.Campaigns)
	}
}
