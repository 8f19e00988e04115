package integration

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"testing"
	"time"
)

// Tests in this package talk to a running stock-adjustment-service backed by
// inventory-gateway-sim with its seeded catalog.
func baseURL(t *testing.T) string {
	t.Helper()
	v := os.Getenv("BASE_URL")
	if v == "" {
		t.Skip("BASE_URL not set")
	}
	return strings.TrimRight(v, "/")
}

func waitReady(t *testing.T) string {
	t.Helper()
	u := baseURL(t)
	deadline := time.Now().Add(20 * time.Second)
	for time.Now().Before(deadline) {
		resp, err := http.Get(u + "/healthz")
		if err == nil {
			_ = resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return u
			}
		}
		time.Sleep(250 * time.Millisecond)
	}
	t.Fatalf("service not ready")
	return ""
}

func send(t *testing.T, method, url, body string) (*http.Response, []byte) {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = bytes.NewBufferString(body)
	}
	req, err := http.NewRequest(method, url, rd)
	if err != nil {
		t.Fatal(err)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	return resp, b
}

type state struct {
	Version uint64 `json:"version"`
	Lookup  string `json:"lookup"`
	Busy    bool   `json:"busy"`
	Product *struct {
		Code string `json:"code"`
	} `json:"product"`
	Stock *struct {
		Quantity int64 `json:"quantity"`
	} `json:"stock"`
	Pending    int64 `json:"pending"`
	Processing bool  `json:"processing"`
	History    []struct {
		ID       string `json:"id"`
		Delta    int64  `json:"delta"`
		Reverted bool   `json:"reverted"`
	} `json:"history"`
}

func getState(t *testing.T, u string) state {
	t.Helper()
	resp, b := send(t, http.MethodGet, u+"/session", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var st state
	if err := json.Unmarshal(b, &st); err != nil {
		t.Fatalf("decode state: %v", err)
	}
	return st
}

func scan(t *testing.T, u, code string) state {
	t.Helper()
	resp, _ := send(t, http.MethodPost, u+"/session/scan", fmt.Sprintf(`{"code":%q}`, code))
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", resp.StatusCode)
	}
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		st := getState(t, u)
		if !st.Busy && st.Lookup != "idle" {
			return st
		}
		time.Sleep(100 * time.Millisecond)
	}
	t.Fatalf("lookup of %s did not finish", code)
	return state{}
}

func TestIntegration_OpenAPIAndDocsServed(t *testing.T) {
	u := waitReady(t)
	for _, p := range []string{"/openapi.yaml", "/docs", "/debug/vars", "/debug/metrics"} {
		resp, _ := send(t, http.MethodGet, u+p, "")
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d", p, resp.StatusCode)
		}
	}
}

func TestIntegration_CommitThenUndo(t *testing.T) {
	u := waitReady(t)
	st := scan(t, u, "8839-22-BLK")
	if st.Lookup != "found" || st.Stock == nil {
		t.Fatalf("expected product found, got %+v", st)
	}
	base := st.Stock.Quantity

	if resp, _ := send(t, http.MethodPut, u+"/session/pending", `{"value":"3"}`); resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	resp, b := send(t, http.MethodPost, u+"/session/commit", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.StatusCode, b)
	}
	var entry struct {
		ID    string `json:"id"`
		Delta int64  `json:"delta"`
	}
	if err := json.Unmarshal(b, &entry); err != nil {
		t.Fatalf("decode entry: %v", err)
	}
	st = getState(t, u)
	if st.Stock.Quantity != base+3 || st.Pending != 1 || st.Processing {
		t.Fatalf("unexpected state after commit: %+v", st)
	}

	resp, b = send(t, http.MethodPost, u+"/session/history/"+entry.ID+"/undo", `{"confirm":true}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.StatusCode, b)
	}
	st = getState(t, u)
	if st.Stock.Quantity != base {
		t.Fatalf("expected %d after undo, got %d", base, st.Stock.Quantity)
	}
}

func TestIntegration_ShortCodeClearsProduct(t *testing.T) {
	u := waitReady(t)
	scan(t, u, "8839-22-BLK")
	resp, _ := send(t, http.MethodPost, u+"/session/scan", `{"code":"88"}`)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", resp.StatusCode)
	}
	if st := getState(t, u); st.Product != nil || st.Lookup != "idle" {
		t.Fatalf("expected product cleared, got %+v", st)
	}
}

func TestIntegration_UnknownCodeNotFound(t *testing.T) {
	u := waitReady(t)
	if st := scan(t, u, "0000-00-XXX"); st.Lookup != "not_found" || st.Product != nil {
		t.Fatalf("expected not_found, got %+v", st)
	}
	resp, _ := send(t, http.MethodPost, u+"/session/commit", "")
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", resp.StatusCode)
	}
}

func TestIntegration_ValidationErrors(t *testing.T) {
	u := waitReady(t)
	cases := []struct {
		method, path, ct, body string
		want                   int
	}{
		{http.MethodPost, "/session/scan", "text/plain", `{}`, http.StatusUnsupportedMediaType},
		{http.MethodPost, "/session/scan", "application/json", `{"code":1}`, http.StatusBadRequest},
		{http.MethodPost, "/session/scan", "application/json", `{"code":"x","extra":true}`, http.StatusBadRequest},
		{http.MethodPost, "/session/pending/step", "application/json", `{}`, http.StatusBadRequest},
		{http.MethodGet, "/session/commit", "", "", http.StatusMethodNotAllowed},
		{http.MethodPost, "/session/history/missing/undo", "application/json", `{"confirm":true}`, http.StatusNotFound},
	}
	for _, tc := range cases {
		req, _ := http.NewRequest(tc.method, u+tc.path, bytes.NewBufferString(tc.body))
		if tc.ct != "" {
			req.Header.Set("Content-Type", tc.ct)
		}
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatal(err)
		}
		_ = resp.Body.Close()
		if resp.StatusCode != tc.want {
			t.Fatalf("%s %s: expected %d, got %d", tc.method, tc.path, tc.want, resp.StatusCode)
		}
		if resp.Header.Get("X-Request-Id") == "" {
			t.Fatalf("expected generated X-Request-Id")
		}
	}
}
