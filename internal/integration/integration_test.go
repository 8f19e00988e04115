package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fairyhunter13/stock-adjustment-service/internal/config"
	"github.com/fairyhunter13/stock-adjustment-service/internal/gateway"
	"github.com/fairyhunter13/stock-adjustment-service/internal/gateway/gatewaysim"
	httpapi "github.com/fairyhunter13/stock-adjustment-service/internal/http"
	"github.com/fairyhunter13/stock-adjustment-service/internal/journal"
	"github.com/fairyhunter13/stock-adjustment-service/internal/model"
	"github.com/fairyhunter13/stock-adjustment-service/internal/obs"
	"github.com/fairyhunter13/stock-adjustment-service/internal/queue"
	"github.com/fairyhunter13/stock-adjustment-service/internal/session"
	"github.com/fairyhunter13/stock-adjustment-service/internal/store"
)

type capture struct {
	mu     sync.Mutex
	events []model.AdjustmentEvent
}

func (c *capture) sink() queue.Sink {
	return queue.SinkFunc{Label: "capture", Fn: func(_ context.Context, ev model.AdjustmentEvent) error {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.events = append(c.events, ev)
		return nil
	}}
}

func (c *capture) all() []model.AdjustmentEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]model.AdjustmentEvent(nil), c.events...)
}

type stack struct {
	sim     *gatewaysim.Server
	handler http.Handler
	ctrl    *session.Controller
	mgr     *queue.Manager
	journal *journal.Journal
	events  *capture
}

func newStack(t *testing.T, latency time.Duration) *stack {
	t.Helper()
	cfg := config.Load()
	obs.InitLogger()
	sim := gatewaysim.New(latency,
		gatewaysim.Product{ID: 1, Code: "8839-22-BLK", Name: "Crew Neck Tee Black", Price: decimal.RequireFromString("49.90"), Quantity: 45},
		gatewaysim.Product{ID: 2, Code: "8839-22-WHT", Name: "Crew Neck Tee White", Price: decimal.RequireFromString("49.90"), Quantity: 12},
	)
	srv := httptest.NewServer(sim.Handler())
	t.Cleanup(srv.Close)
	gw, err := gateway.New(gateway.Options{BaseURL: srv.URL, Timeout: 2 * time.Second})
	if err != nil {
		t.Fatalf("gateway: %v", err)
	}
	j, err := journal.Open(filepath.Join(t.TempDir(), "journal.db"))
	if err != nil {
		t.Fatalf("journal: %v", err)
	}
	t.Cleanup(func() { _ = j.Close() })
	events := &capture{}
	mgr := queue.NewManager(queue.New(8), 2, time.Second, j, events.sink())
	ctx, cancel := context.WithCancel(context.Background())
	mgr.Start(ctx)
	t.Cleanup(func() { cancel(); mgr.Stop() })

	ctrl := session.New(gw, session.Options{
		LookupDebounce: 20 * time.Millisecond,
		LookupTimeout:  2 * time.Second,
		Mirror:         store.New(),
		Recorder:       mgr,
	})
	t.Cleanup(ctrl.Close)
	app := httpapi.NewApp(cfg, ctrl, mgr, j)
	return &stack{sim: sim, handler: httpapi.NewRouter(app), ctrl: ctrl, mgr: mgr, journal: j, events: events}
}

func (s *stack) post(t *testing.T, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r *http.Request
	if body == "" {
		r = httptest.NewRequest(http.MethodPost, path, nil)
	} else {
		r = httptest.NewRequest(http.MethodPost, path, bytes.NewBufferString(body))
		r.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	s.handler.ServeHTTP(w, r)
	return w
}

func (s *stack) waitLoaded(t *testing.T, code string) session.State {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		st := s.ctrl.State()
		if !st.Busy && st.Product != nil && st.Product.Code == code {
			return st
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("%s never loaded", code)
	return session.State{}
}

func TestIntegration_SupersededLookupNeverWins(t *testing.T) {
	s := newStack(t, 80*time.Millisecond)
	s.post(t, "/session/scan", `{"code":"8839-22-BLK"}`)
	// let the first lookup reach the gateway, then replace it
	time.Sleep(40 * time.Millisecond)
	s.post(t, "/session/scan", `{"code":"8839-22-WHT"}`)
	st := s.waitLoaded(t, "8839-22-WHT")
	if st.Stock.Quantity != 12 {
		t.Fatalf("expected 12, got %d", st.Stock.Quantity)
	}
	time.Sleep(200 * time.Millisecond)
	if st := s.ctrl.State(); st.Product == nil || st.Product.Code != "8839-22-WHT" {
		t.Fatalf("superseded lookup replaced the product: %+v", st.Product)
	}
}

func TestIntegration_FullSessionRecordsEvents(t *testing.T) {
	s := newStack(t, 0)
	s.post(t, "/session/scan", `{"code":"8839-22-BLK"}`)
	s.waitLoaded(t, "8839-22-BLK")

	var ids []string
	for _, n := range []string{`{"value":3}`, `{"value":2}`} {
		r := httptest.NewRequest(http.MethodPut, "/session/pending", bytes.NewBufferString(n))
		r.Header.Set("Content-Type", "application/json")
		s.handler.ServeHTTP(httptest.NewRecorder(), r)
		w := s.post(t, "/session/commit", "")
		if w.Code != http.StatusOK {
			t.Fatalf("commit: expected 200, got %d", w.Code)
		}
		var e model.HistoryEntry
		if err := json.Unmarshal(w.Body.Bytes(), &e); err != nil {
			t.Fatalf("decode: %v", err)
		}
		ids = append(ids, e.ID)
	}
	if q, _ := s.sim.Quantity("8839-22-BLK"); q != 50 {
		t.Fatalf("expected remote 50, got %d", q)
	}
	if w := s.post(t, "/session/history/"+ids[0]+"/undo", `{"confirm":true}`); w.Code != http.StatusConflict {
		t.Fatalf("expected 409 for out of order undo, got %d", w.Code)
	}
	for _, id := range []string{ids[1], ids[0]} {
		if w := s.post(t, "/session/history/"+id+"/undo", `{"confirm":true}`); w.Code != http.StatusOK {
			t.Fatalf("undo %s: expected 200, got %d", id, w.Code)
		}
	}
	if q, _ := s.sim.Quantity("8839-22-BLK"); q != 45 {
		t.Fatalf("expected remote 45, got %d", q)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if !s.mgr.DrainUntil(ctx) {
		t.Fatalf("drain timeout")
	}
	records, err := s.journal.List(0)
	if err != nil {
		t.Fatalf("journal: %v", err)
	}
	if len(records) != 4 {
		t.Fatalf("expected 4 journal records, got %d", len(records))
	}
	if got := s.events.all(); len(got) != 4 {
		t.Fatalf("expected 4 published events, got %d", len(got))
	}
	wantQty := []int64{45, 48, 50, 48}
	for i, r := range records {
		if r.Quantity != wantQty[i] {
			t.Fatalf("record %d: expected quantity %d, got %d", i, wantQty[i], r.Quantity)
		}
	}
}
