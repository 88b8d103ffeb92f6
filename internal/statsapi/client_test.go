package statsapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/adgrid-network/weightd/internal/models"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, 5*time.Second, ClientConfig{
		MaxRetries:     2,
		RetryDelayBase: time.Millisecond,
	})
}

func TestCampaigns(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/campaigns" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(`[{"scope":"retail-eu","mechanism_id":1,"emission_split":70},{"scope":"retail-us","mechanism_id":2}]`))
	}))

	campaigns, err := c.Campaigns(context.Background())
	if err != nil {
		t.Fatalf("Campaigns: %v", err)
	}
	if len(campaigns) != 2 {
		t.Fatalf("got %d campaigns, want 2", len(campaigns))
	}
	if campaigns[0].EmissionSplit == nil || *campaigns[0].EmissionSplit != 70 {
		t.Errorf("first campaign split: %v", campaigns[0].EmissionSplit)
	}
	if campaigns[1].EmissionSplit != nil {
		t.Error("second campaign should have no declared split")
	}
}

func TestMinerStats(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("scope") != "retail-eu" || r.URL.Query().Get("window_days") != "30" {
			t.Errorf("unexpected query: %s", r.URL.RawQuery)
		}
		w.Write([]byte(`[{"miner_id":"hk-a","stats":{"sales":12,"revenue_usd":840.5,"refund_orders":1}}]`))
	}))

	stats, err := c.MinerStats(context.Background(), "retail-eu", 30)
	if err != nil {
		t.Fatalf("MinerStats: %v", err)
	}
	if len(stats) != 1 || stats[0].MinerID != "hk-a" || stats[0].Stats.Sales != 12 {
		t.Errorf("unexpected stats: %+v", stats)
	}
}

func TestScopeConfig_DefaultsAndCache(t *testing.T) {
	var hits int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		// Only override one field; the rest must keep defaults.
		w.Write([]byte(`{"w_sales":0.5,"w_rev":0.5}`))
	}))

	cfg, err := c.ScopeConfig(context.Background(), "retail-eu")
	if err != nil {
		t.Fatalf("ScopeConfig: %v", err)
	}
	if cfg.WSales != 0.5 || cfg.WRev != 0.5 {
		t.Errorf("overridden weights not applied: %+v", cfg)
	}
	if cfg.WindowDays != models.DefaultWindowDays {
		t.Errorf("window days should keep default, got %d", cfg.WindowDays)
	}
	if cfg.Thresholds.Mode != models.ThresholdAdaptive {
		t.Errorf("threshold mode should keep default, got %s", cfg.Thresholds.Mode)
	}
	if cfg.Scope != "retail-eu" {
		t.Errorf("scope not set: %q", cfg.Scope)
	}

	if _, err := c.ScopeConfig(context.Background(), "retail-eu"); err != nil {
		t.Fatalf("ScopeConfig (cached): %v", err)
	}
	if n := atomic.LoadInt32(&hits); n != 1 {
		t.Errorf("server hit %d times, want 1 (TTL cache)", n)
	}
}

func TestBurnPolicy(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantNil bool
		wantPct float64
	}{
		{
			name:    "explicit percentage",
			body:    `{"percentage":35,"beneficiary_id":"creator-1"}`,
			wantPct: 35,
		},
		{
			name:    "derived from emissions",
			body:    `{"emission":{"emission_tao":10,"tao_price_usd":100,"total_sales_usd":500,"sales_emission_ratio":1}}`,
			wantPct: 50,
		},
		{
			name:    "no burn configured",
			body:    `{}`,
			wantNil: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(tt.body))
			}))
			policy, err := c.BurnPolicy(context.Background(), "retail-eu")
			if err != nil {
				t.Fatalf("BurnPolicy: %v", err)
			}
			if tt.wantNil {
				if policy != nil {
					t.Fatalf("got %+v, want nil", policy)
				}
				return
			}
			if policy == nil || policy.Percentage != tt.wantPct {
				t.Errorf("got %+v, want pct %v", policy, tt.wantPct)
			}
		})
	}
}

func TestBeneficiary(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"owner_id":"hk-owner"}`))
	}))

	owner, err := c.Beneficiary(context.Background())
	if err != nil {
		t.Fatalf("Beneficiary: %v", err)
	}
	if owner != "hk-owner" {
		t.Errorf("got %q, want hk-owner", owner)
	}
}

func TestRetryOnServerError(t *testing.T) {
	var hits int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&hits, 1) == 1 {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		w.Write([]byte(`{"owner_id":"hk-owner"}`))
	}))

	if _, err := c.Beneficiary(context.Background()); err != nil {
		t.Fatalf("Beneficiary after retry: %v", err)
	}
	if n := atomic.LoadInt32(&hits); n != 2 {
		t.Errorf("server hit %d times, want 2", n)
	}
}

func TestRetriesExhausted(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))

	if _, err := c.Campaigns(context.Background()); err == nil {
		t.Fatal("expected error after exhausted retries")
	}
}
