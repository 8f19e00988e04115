package session

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/fairyhunter13/stock-adjustment-service/internal/model"
	"github.com/fairyhunter13/stock-adjustment-service/internal/obs"
)

// Commit writes the loaded quantity plus the staged adjustment to the
// gateway as an absolute value. Only one Commit or Undo may be in flight;
// the processing flag is cleared on every exit path.
func (c *Controller) Commit(ctx context.Context) (model.HistoryEntry, error) {
	c.mu.Lock()
	if err := c.commitAllowedLocked(); err != nil {
		c.mu.Unlock()
		return model.HistoryEntry{}, err
	}
	ref := *c.product
	base := c.stock.Quantity
	delta := c.pending
	c.processing = true
	emit := c.changedLocked()
	c.mu.Unlock()
	emit()

	target := base + delta
	var (
		entry model.HistoryEntry
		ok    bool
	)
	defer func() {
		c.mu.Lock()
		c.processing = false
		switch {
		case ok && c.closed:
			c.history = append([]model.HistoryEntry{entry}, c.history...)
		case ok:
			// sequenced at completion so lookups issued during the write
			// cannot outrank it
			held, _ := c.mirror.Apply(ref.Code, target, c.seq.Next())
			if c.product != nil && c.product.Code == ref.Code {
				c.setStockLocked(held.Value, entry.CommittedAt)
			}
			c.history = append([]model.HistoryEntry{entry}, c.history...)
			c.pending = 1
			c.awaitingScan = true
			c.showNoticeLocked("Stock updated", model.NoticeInfo)
		case !c.closed:
			c.showNoticeLocked("Failed to update stock", model.NoticeError)
		}
		emit := c.changedLocked()
		c.mu.Unlock()
		emit()
		if ok {
			c.record(model.AdjustmentCommitted, entry, target, nil)
		}
	}()

	if err := c.gw.SetQuantity(ctx, ref, target); err != nil {
		obs.Logger.Warn("commit_failed", "code", ref.Code, "quantity", target, "error", err)
		return model.HistoryEntry{}, fmt.Errorf("%w: %w", ErrGateway, err)
	}
	entry = model.HistoryEntry{
		ID:                   newEntryID(),
		Kind:                 model.EntryStock,
		ProductID:            ref.ID,
		ProductCode:          ref.Code,
		Description:          ref.DisplayName,
		Delta:                delta,
		BaseStockBeforeDelta: base,
		CommittedAt:          time.Now().UTC(),
	}
	ok = true
	obs.Logger.Info("adjustment_committed",
		"entry_id", entry.ID,
		"code", ref.Code,
		"delta", delta,
		"quantity", target,
	)
	return entry, nil
}

func (c *Controller) commitAllowedLocked() error {
	switch {
	case c.closed:
		return ErrClosed
	case c.processing:
		return ErrBusy
	case c.product == nil || c.stock == nil:
		return ErrNoProduct
	case c.pending < 1 || c.pending > math.MaxInt64-c.stock.Quantity:
		return ErrInvalidAdjustment
	}
	return nil
}

// Undo reverts the history entry id. A stock entry writes the current
// mirrored quantity of its product minus the entry's delta; a price entry
// writes back its old price. Entries of one product and kind are reverted
// newest first. confirm is asked before anything else happens; declining
// leaves the session untouched.
func (c *Controller) Undo(ctx context.Context, id string, confirm Confirmation) (out model.HistoryEntry, err error) {
	c.mu.Lock()
	entry, _, err := c.undoCandidateLocked(id)
	c.mu.Unlock()
	if err != nil {
		return model.HistoryEntry{}, err
	}
	if confirm == nil || !confirm(entry) {
		return model.HistoryEntry{}, ErrUndoDeclined
	}

	// the session may have moved while the operator was deciding
	c.mu.Lock()
	entry, current, err := c.undoCandidateLocked(id)
	if err != nil {
		c.mu.Unlock()
		return model.HistoryEntry{}, err
	}
	c.processing = true
	emit := c.changedLocked()
	c.mu.Unlock()
	emit()

	if entry.Kind == model.EntryPrice {
		return c.undoPrice(ctx, entry)
	}
	target := current - entry.Delta
	ref := model.ProductRef{ID: entry.ProductID, Code: entry.ProductCode, DisplayName: entry.Description}
	ok := false
	defer func() {
		c.mu.Lock()
		c.processing = false
		if ok {
			now := time.Now().UTC()
			out = c.markRevertedLocked(id, now)
			entry = out
			if !c.closed {
				held, _ := c.mirror.Apply(ref.Code, target, c.seq.Next())
				if c.product != nil && c.product.Code == ref.Code {
					c.setStockLocked(held.Value, now)
				}
				c.showNoticeLocked("Adjustment reverted", model.NoticeInfo)
			}
		} else if !c.closed {
			c.showNoticeLocked("Failed to revert adjustment", model.NoticeError)
		}
		emit := c.changedLocked()
		c.mu.Unlock()
		emit()
		if ok {
			c.record(model.AdjustmentReverted, entry, target, nil)
		}
	}()

	if err := c.gw.SetQuantity(ctx, ref, target); err != nil {
		obs.Logger.Warn("undo_failed", "entry_id", id, "code", ref.Code, "quantity", target, "error", err)
		return model.HistoryEntry{}, fmt.Errorf("%w: %w", ErrGateway, err)
	}
	ok = true
	obs.Logger.Info("adjustment_reverted",
		"entry_id", id,
		"code", ref.Code,
		"delta", entry.Delta,
		"quantity", target,
	)
	return entry, nil
}

// undoCandidateLocked validates id for undo and returns the entry together
// with the mirrored quantity its product holds now.
func (c *Controller) undoCandidateLocked(id string) (model.HistoryEntry, int64, error) {
	if c.closed {
		return model.HistoryEntry{}, 0, ErrClosed
	}
	if c.processing {
		return model.HistoryEntry{}, 0, ErrBusy
	}
	idx := -1
	for i, e := range c.history {
		if e.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return model.HistoryEntry{}, 0, ErrEntryNotFound
	}
	entry := c.history[idx]
	if entry.Reverted {
		return model.HistoryEntry{}, 0, ErrAlreadyReverted
	}
	for _, newer := range c.history[:idx] {
		if !newer.Reverted && newer.ProductCode == entry.ProductCode && newer.Kind == entry.Kind {
			return model.HistoryEntry{}, 0, ErrOutOfOrder
		}
	}
	if entry.Kind == model.EntryPrice {
		return entry, 0, nil
	}
	current := entry.BaseStockBeforeDelta + entry.Delta
	if q, ok := c.mirror.Get(entry.ProductCode); ok {
		current = q.Value
	}
	if current-entry.Delta < 0 {
		return model.HistoryEntry{}, 0, ErrNegativeStock
	}
	return entry, current, nil
}

func (c *Controller) setStockLocked(qty int64, at time.Time) {
	from := c.displayed
	c.stock = &model.StockSnapshot{Quantity: qty, FetchedAt: at}
	c.startRollLocked(from, qty)
}

// markRevertedLocked flags history entry id as reverted at now and returns
// the updated entry.
func (c *Controller) markRevertedLocked(id string, now time.Time) model.HistoryEntry {
	for i := range c.history {
		if c.history[i].ID == id {
			c.history[i].Reverted = true
			c.history[i].RevertedAt = &now
			return c.history[i]
		}
	}
	return model.HistoryEntry{}
}
