// Package gateway talks to the remote inventory REST API.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"

	"github.com/fairyhunter13/stock-adjustment-service/internal/model"
	"github.com/fairyhunter13/stock-adjustment-service/internal/obs"
)

const (
	productsPath = "/api/v1/products"
	itemsPath    = "/items"
)

// IDCache remembers which remote product id a scanned code resolves to.
type IDCache interface {
	Get(ctx context.Context, code string) (string, bool, error)
	Set(ctx context.Context, code, id string) error
	Delete(ctx context.Context, code string) error
}

// Options configures a Client.
type Options struct {
	BaseURL    string
	Token      string
	Timeout    time.Duration
	HTTPClient *http.Client
	Cache      IDCache
}

// Client is the REST implementation of the inventory gateway.
type Client struct {
	base  string
	token string
	hc    *http.Client
	cache IDCache
	group singleflight.Group
}

// New validates opts and builds a Client.
func New(opts Options) (*Client, error) {
	u, err := url.Parse(opts.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("gateway base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("gateway base url: unsupported scheme %q", u.Scheme)
	}
	hc := opts.HTTPClient
	if hc == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 5 * time.Second
		}
		hc = &http.Client{Timeout: timeout}
	}
	return &Client{
		base:  strings.TrimRight(opts.BaseURL, "/"),
		token: opts.Token,
		hc:    hc,
		cache: opts.Cache,
	}, nil
}

type searchResponse struct {
	Data []struct {
		ID   json.Number `json:"id"`
		Name string      `json:"name"`
	} `json:"data"`
}

type detailResponse struct {
	Data struct {
		ID      json.Number `json:"id"`
		Name    string      `json:"name"`
		Details []struct {
			Name            string              `json:"name"`
			Price           decimal.NullDecimal `json:"price"`
			CurrentQuantity decimal.NullDecimal `json:"current_quantity"`
		} `json:"details"`
	} `json:"data"`
}

type writeRequest struct {
	Barcode  string `json:"barcode"`
	Quantity int64  `json:"quantity"`
}

// Lookup resolves code to a product and its current remote quantity.
// Concurrent lookups of the same code share one round trip. A caller whose
// ctx ends stops waiting; the shared round trip keeps going for the others
// and is bounded by the client timeout.
func (c *Client) Lookup(ctx context.Context, code string) (model.Item, error) {
	ch := c.group.DoChan(code, func() (any, error) {
		return c.lookup(context.WithoutCancel(ctx), code)
	})
	select {
	case <-ctx.Done():
		return model.Item{}, &TransportError{Op: "lookup", Err: ctx.Err()}
	case res := <-ch:
		if res.Err != nil {
			return model.Item{}, res.Err
		}
		return res.Val.(model.Item), nil
	}
}

func (c *Client) lookup(ctx context.Context, code string) (model.Item, error) {
	id, name, cached, err := c.resolveID(ctx, code)
	if err != nil {
		return model.Item{}, err
	}
	item, err := c.fetchDetail(ctx, id, code, name)
	if errors.Is(err, ErrNotFound) && cached {
		// the cached id went stale; resolve once more from the search endpoint
		c.forget(ctx, code)
		id, name, _, err = c.search(ctx, code)
		if err != nil {
			return model.Item{}, err
		}
		item, err = c.fetchDetail(ctx, id, code, name)
	}
	return item, err
}

func (c *Client) resolveID(ctx context.Context, code string) (id, name string, cached bool, err error) {
	if c.cache != nil {
		id, ok, cerr := c.cache.Get(ctx, code)
		if cerr != nil {
			obs.Logger.Warn("gateway_cache_get_failed", "code", code, "error", cerr)
		} else if ok {
			return id, "", true, nil
		}
	}
	return c.search(ctx, code)
}

func (c *Client) search(ctx context.Context, code string) (id, name string, cached bool, err error) {
	q := url.Values{}
	q.Set("page", "1")
	q.Set("limit", "1")
	q.Set("search", code)
	var res searchResponse
	if err := c.getJSON(ctx, "search", productsPath+"?"+q.Encode(), &res); err != nil {
		return "", "", false, err
	}
	if len(res.Data) == 0 || res.Data[0].ID == "" {
		return "", "", false, ErrNotFound
	}
	id = res.Data[0].ID.String()
	if c.cache != nil {
		if err := c.cache.Set(ctx, code, id); err != nil {
			obs.Logger.Warn("gateway_cache_set_failed", "code", code, "error", err)
		}
	}
	return id, res.Data[0].Name, false, nil
}

func (c *Client) forget(ctx context.Context, code string) {
	if c.cache == nil {
		return
	}
	if err := c.cache.Delete(ctx, code); err != nil {
		obs.Logger.Warn("gateway_cache_delete_failed", "code", code, "error", err)
	}
}

func (c *Client) fetchDetail(ctx context.Context, id, code, searchName string) (model.Item, error) {
	var res detailResponse
	if err := c.getJSON(ctx, "detail", productsPath+"/"+url.PathEscape(id), &res); err != nil {
		return model.Item{}, err
	}
	ref := model.ProductRef{ID: id, Code: code, DisplayName: res.Data.Name}
	if ref.DisplayName == "" {
		ref.DisplayName = searchName
	}
	var qty int64
	if len(res.Data.Details) > 0 {
		d := res.Data.Details[0]
		if d.Name != "" {
			ref.DisplayName = d.Name
		}
		if d.Price.Valid {
			ref.Price = d.Price.Decimal
		}
		if d.CurrentQuantity.Valid {
			qty = d.CurrentQuantity.Decimal.IntPart()
		}
	}
	if rid := res.Data.ID.String(); rid != "" {
		ref.ID = rid
	}
	return model.Item{Product: ref, Quantity: qty}, nil
}

// SetQuantity writes the absolute quantity of product to the remote API.
func (c *Client) SetQuantity(ctx context.Context, product model.ProductRef, quantity int64) error {
	body, err := json.Marshal(writeRequest{Barcode: product.Code, Quantity: quantity})
	if err != nil {
		return fmt.Errorf("encode write: %w", err)
	}
	resp, err := c.do(ctx, "write", http.MethodPatch, itemsPath, bytes.NewReader(body))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &TransportError{Op: "write", Status: resp.StatusCode}
	}
	return nil
}

// SetPrice writes price as the unit price of product's first detail row.
// The remote detail is read and written back whole so the other fields
// and rows keep their values.
func (c *Client) SetPrice(ctx context.Context, product model.ProductRef, price decimal.Decimal) error {
	id := product.ID
	if id == "" {
		var err error
		if id, _, _, err = c.resolveID(ctx, product.Code); err != nil {
			return err
		}
	}
	path := productsPath + "/" + url.PathEscape(id)
	var res struct {
		Data map[string]json.RawMessage `json:"data"`
	}
	if err := c.getJSON(ctx, "price read", path, &res); err != nil {
		return err
	}
	payload, err := withPrice(res.Data, price)
	if err != nil {
		return &TransportError{Op: "price read", Err: err}
	}
	resp, err := c.do(ctx, "price write", http.MethodPut, path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode == http.StatusNotFound {
		c.forget(ctx, product.Code)
		return ErrNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &TransportError{Op: "price write", Status: resp.StatusCode}
	}
	return nil
}

// withPrice returns detail encoded with details[0].price replaced.
func withPrice(detail map[string]json.RawMessage, price decimal.Decimal) ([]byte, error) {
	if detail == nil {
		return nil, errors.New("empty product detail")
	}
	var rows []map[string]json.RawMessage
	if raw, ok := detail["details"]; ok {
		if err := json.Unmarshal(raw, &rows); err != nil {
			return nil, fmt.Errorf("decode details: %w", err)
		}
	}
	if len(rows) == 0 || rows[0] == nil {
		return nil, errors.New("product has no detail rows")
	}
	rows[0]["price"] = json.RawMessage(price.String())
	enc, err := json.Marshal(rows)
	if err != nil {
		return nil, fmt.Errorf("encode details: %w", err)
	}
	detail["details"] = enc
	return json.Marshal(detail)
}

func (c *Client) getJSON(ctx context.Context, op, path string, out any) error {
	resp, err := c.do(ctx, op, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		_, _ = io.Copy(io.Discard, resp.Body)
		return ErrNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return &TransportError{Op: op, Status: resp.StatusCode}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &TransportError{Op: op, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

func (c *Client) do(ctx context.Context, op, method, path string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return nil, &TransportError{Op: op, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	start := time.Now()
	resp, err := c.hc.Do(req)
	if err != nil {
		obs.Logger.Warn("gateway_request_failed", "op", op, "method", method, "error", err)
		return nil, &TransportError{Op: op, Err: err}
	}
	obs.Logger.Debug("gateway_request",
		"op", op,
		"method", method,
		"status", resp.StatusCode,
		"latency_ms", float64(time.Since(start).Microseconds())/1000.0,
	)
	return resp, nil
}
