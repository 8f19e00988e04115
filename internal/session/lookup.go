package session

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/fairyhunter13/stock-adjustment-service/internal/gateway"
	"github.com/fairyhunter13/stock-adjustment-service/internal/model"
	"github.com/fairyhunter13/stock-adjustment-service/internal/obs"
)

// Lookup records a scanned or typed code. Codes shorter than the minimum
// length clear the loaded product at once and never reach the gateway.
// Longer codes are looked up after the input has been quiet for the
// debounce period; any earlier pending or in-flight lookup is dropped.
func (c *Controller) Lookup(code string) {
	code = strings.TrimSpace(code)
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.lookupGen++
	gen := c.lookupGen
	c.stopLookupLocked()
	c.code = code
	c.awaitingScan = false
	if utf8.RuneCountInString(code) < c.opts.MinCodeLength {
		c.clearProductLocked(model.LookupIdle)
	} else {
		c.debounce = time.AfterFunc(c.opts.LookupDebounce, func() { c.runLookup(gen, code) })
	}
	emit := c.changedLocked()
	c.mu.Unlock()
	emit()
}

// stopLookupLocked cancels the debounce timer and any in-flight lookup.
func (c *Controller) stopLookupLocked() {
	if c.debounce != nil {
		c.debounce.Stop()
		c.debounce = nil
	}
	if c.lookupCancel != nil {
		c.lookupCancel()
		c.lookupCancel = nil
	}
	c.busy = false
}

func (c *Controller) clearProductLocked(status model.LookupStatus) {
	c.product = nil
	c.stock = nil
	c.lookup = status
	c.stopRollLocked()
	c.displayed = 0
}

func (c *Controller) runLookup(gen uint64, code string) {
	c.mu.Lock()
	if c.closed || gen != c.lookupGen {
		c.mu.Unlock()
		return
	}
	var ctx context.Context
	var cancel context.CancelFunc
	if c.opts.LookupTimeout > 0 {
		ctx, cancel = context.WithTimeout(c.baseCtx, c.opts.LookupTimeout)
	} else {
		ctx, cancel = context.WithCancel(c.baseCtx)
	}
	c.debounce = nil
	c.lookupCancel = cancel
	c.busy = true
	seq := c.seq.Next()
	emit := c.changedLocked()
	c.mu.Unlock()
	emit()

	start := time.Now()
	item, err := c.gw.Lookup(ctx, code)
	cancel()

	c.mu.Lock()
	if c.closed || gen != c.lookupGen {
		c.mu.Unlock()
		return
	}
	c.lookupCancel = nil
	c.busy = false
	if err != nil {
		c.clearProductLocked(model.LookupNotFound)
		if errors.Is(err, gateway.ErrNotFound) {
			c.showNoticeLocked("Product not found", model.NoticeError)
			obs.Logger.Info("lookup_not_found", "code", code)
		} else {
			c.showNoticeLocked("Product lookup failed", model.NoticeError)
			obs.Logger.Warn("lookup_failed", "code", code, "error", err)
		}
	} else {
		ref := item.Product
		ref.Code = code
		qty := item.Quantity
		if qty < 0 {
			qty = 0
		}
		held, _ := c.mirror.Apply(code, qty, seq)
		c.product = &ref
		c.stock = &model.StockSnapshot{Quantity: held.Value, FetchedAt: time.Now()}
		c.lookup = model.LookupFound
		c.stopRollLocked()
		c.displayed = held.Value
		obs.Logger.Info("lookup_completed",
			"code", code,
			"product_id", ref.ID,
			"quantity", held.Value,
			"latency_ms", float64(time.Since(start).Microseconds())/1000.0,
		)
	}
	emit = c.changedLocked()
	c.mu.Unlock()
	emit()
}
