// Package gatewaysim simulates the remote inventory REST API in memory.
package gatewaysim

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fairyhunter13/stock-adjustment-service/internal/obs"
)

// Product is one catalog row of the simulator.
type Product struct {
	ID       int64
	Code     string
	Name     string
	Price    decimal.Decimal
	Quantity int64
}

// Server serves the inventory endpoints over an in-memory catalog.
type Server struct {
	latency time.Duration

	mu     sync.Mutex
	byID   map[int64]*Product
	byCode map[string]int64

	failLookups atomic.Bool
	failWrites  atomic.Bool

	searches atomic.Int64
	details  atomic.Int64
	writes   atomic.Int64
	prices   atomic.Int64
}

// New creates a simulator delaying every answer by latency.
func New(latency time.Duration, products ...Product) *Server {
	s := &Server{
		latency: latency,
		byID:    make(map[int64]*Product),
		byCode:  make(map[string]int64),
	}
	for _, p := range products {
		s.Put(p)
	}
	return s
}

// Put inserts or replaces a catalog row.
func (s *Server) Put(p Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := p
	s.byID[p.ID] = &cp
	s.byCode[p.Code] = p.ID
}

// Remove deletes the row for code, keeping nothing behind.
func (s *Server) Remove(code string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.byCode[code]; ok {
		delete(s.byID, id)
		delete(s.byCode, code)
	}
}

// Quantity returns the current quantity stored for code.
func (s *Server) Quantity(code string) (int64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byCode[code]
	if !ok {
		return 0, false
	}
	return s.byID[id].Quantity, true
}

// SetQuantity changes a row behind the session's back, as another till would.
func (s *Server) SetQuantity(code string, qty int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byCode[code]
	if !ok {
		return false
	}
	s.byID[id].Quantity = qty
	return true
}

// Price returns the current unit price stored for code.
func (s *Server) Price(code string) (decimal.Decimal, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byCode[code]
	if !ok {
		return decimal.Decimal{}, false
	}
	return s.byID[id].Price, true
}

// FailLookups makes search and detail calls answer 503 while on.
func (s *Server) FailLookups(on bool) { s.failLookups.Store(on) }

// FailWrites makes quantity and price writes answer 503 while on.
func (s *Server) FailWrites(on bool) { s.failWrites.Store(on) }

// Counts returns how many search, detail and write calls were served.
func (s *Server) Counts() (searches, details, writes int64) {
	return s.searches.Load(), s.details.Load(), s.writes.Load()
}

// PriceWrites returns how many product updates were served.
func (s *Server) PriceWrites() int64 { return s.prices.Load() }

// Handler returns the HTTP handler of the simulated API.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/products", s.searchHandler)
	mux.HandleFunc("/api/v1/products/", s.detailHandler)
	mux.HandleFunc("/items", s.writeHandler)
	return mux
}

func (s *Server) wait(r *http.Request) bool {
	if s.latency <= 0 {
		return true
	}
	t := time.NewTimer(s.latency)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-r.Context().Done():
		return false
	}
}

type searchRow struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type detailRow struct {
	Name            string          `json:"name"`
	Price           decimal.Decimal `json:"price"`
	CurrentQuantity int64           `json:"current_quantity"`
}

type detailBody struct {
	ID      int64       `json:"id"`
	Name    string      `json:"name"`
	Details []detailRow `json:"details"`
}

func (s *Server) searchHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed")
		return
	}
	s.searches.Add(1)
	if !s.wait(r) {
		return
	}
	if s.failLookups.Load() {
		writeError(w, http.StatusServiceUnavailable, "unavailable")
		return
	}
	// codes are matched exactly; the real API's fuzzy search is not simulated
	term := strings.TrimSpace(r.URL.Query().Get("search"))
	rows := []searchRow{}
	s.mu.Lock()
	if id, ok := s.byCode[term]; ok && term != "" {
		rows = append(rows, searchRow{ID: id, Name: s.byID[id].Name})
	}
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{"data": rows})
}

func (s *Server) detailHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
	case http.MethodPut:
		s.updateHandler(w, r)
		return
	default:
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed")
		return
	}
	s.details.Add(1)
	if !s.wait(r) {
		return
	}
	if s.failLookups.Load() {
		writeError(w, http.StatusServiceUnavailable, "unavailable")
		return
	}
	id, err := strconv.ParseInt(strings.TrimPrefix(r.URL.Path, "/api/v1/products/"), 10, 64)
	if err != nil {
		writeError(w, http.StatusNotFound, "not_found")
		return
	}
	s.mu.Lock()
	p, ok := s.byID[id]
	var body detailBody
	if ok {
		body = detailBody{
			ID:   p.ID,
			Name: p.Name,
			Details: []detailRow{{
				Name:            p.Name,
				Price:           p.Price,
				CurrentQuantity: p.Quantity,
			}},
		}
	}
	s.mu.Unlock()
	if !ok {
		writeError(w, http.StatusNotFound, "not_found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": body})
}

// updateHandler replaces a product from a full detail body. Only the
// first row's price is taken; quantities move through /items.
func (s *Server) updateHandler(w http.ResponseWriter, r *http.Request) {
	s.prices.Add(1)
	if !s.wait(r) {
		return
	}
	if s.failWrites.Load() {
		writeError(w, http.StatusServiceUnavailable, "unavailable")
		return
	}
	id, err := strconv.ParseInt(strings.TrimPrefix(r.URL.Path, "/api/v1/products/"), 10, 64)
	if err != nil {
		writeError(w, http.StatusNotFound, "not_found")
		return
	}
	var b detailBody
	if err := json.NewDecoder(r.Body).Decode(&b); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	if len(b.Details) == 0 || !b.Details[0].Price.IsPositive() {
		writeError(w, http.StatusBadRequest, "validation_error")
		return
	}
	s.mu.Lock()
	p, ok := s.byID[id]
	if ok {
		p.Price = b.Details[0].Price
	}
	s.mu.Unlock()
	if !ok {
		writeError(w, http.StatusNotFound, "not_found")
		return
	}
	obs.Logger.Info("sim_price_set", "id", id, "price", b.Details[0].Price.String())
	writeJSON(w, http.StatusOK, map[string]any{"data": b})
}

type writeBody struct {
	Barcode  string `json:"barcode"`
	Quantity *int64 `json:"quantity"`
}

func (s *Server) writeHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPatch && r.Method != http.MethodPut {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed")
		return
	}
	s.writes.Add(1)
	if !s.wait(r) {
		return
	}
	if s.failWrites.Load() {
		writeError(w, http.StatusServiceUnavailable, "unavailable")
		return
	}
	var b writeBody
	if err := json.NewDecoder(r.Body).Decode(&b); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	if b.Barcode == "" || b.Quantity == nil || *b.Quantity < 0 {
		writeError(w, http.StatusBadRequest, "validation_error")
		return
	}
	if !s.SetQuantity(b.Barcode, *b.Quantity) {
		writeError(w, http.StatusNotFound, "not_found")
		return
	}
	obs.Logger.Info("sim_quantity_set", "barcode", b.Barcode, "quantity", *b.Quantity)
	writeJSON(w, http.StatusOK, map[string]any{"data": map[string]any{"barcode": b.Barcode, "quantity": *b.Quantity}})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
