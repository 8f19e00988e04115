package session

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fairyhunter13/stock-adjustment-service/internal/model"
	"github.com/fairyhunter13/stock-adjustment-service/internal/obs"
)

// ParsePrice reads an operator-typed price. Anything that is not a
// positive decimal is ErrInvalidPrice.
func ParsePrice(text string) (decimal.Decimal, error) {
	p, err := decimal.NewFromString(strings.TrimSpace(text))
	if err != nil || !p.IsPositive() {
		return decimal.Decimal{}, ErrInvalidPrice
	}
	return p, nil
}

// CommitPrice writes price as the loaded product's new unit price. It
// shares the processing flag with Commit and Undo, so at most one write of
// either kind is in flight.
func (c *Controller) CommitPrice(ctx context.Context, price decimal.Decimal) (model.HistoryEntry, error) {
	c.mu.Lock()
	switch {
	case c.closed:
		c.mu.Unlock()
		return model.HistoryEntry{}, ErrClosed
	case c.processing:
		c.mu.Unlock()
		return model.HistoryEntry{}, ErrBusy
	case c.product == nil:
		c.mu.Unlock()
		return model.HistoryEntry{}, ErrNoProduct
	case !price.IsPositive():
		c.mu.Unlock()
		return model.HistoryEntry{}, ErrInvalidPrice
	}
	ref := *c.product
	c.processing = true
	emit := c.changedLocked()
	c.mu.Unlock()
	emit()

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
			if c.product != nil && c.product.Code == ref.Code {
				c.product.Price = price
			}
			c.history = append([]model.HistoryEntry{entry}, c.history...)
			c.awaitingScan = true
			c.showNoticeLocked("Price updated", model.NoticeInfo)
		case !c.closed:
			c.showNoticeLocked("Failed to update price", model.NoticeError)
		}
		emit := c.changedLocked()
		c.mu.Unlock()
		emit()
		if ok {
			c.record(model.AdjustmentCommitted, entry, 0, &price)
		}
	}()

	if err := c.gw.SetPrice(ctx, ref, price); err != nil {
		obs.Logger.Warn("price_commit_failed", "code", ref.Code, "price", price.String(), "error", err)
		return model.HistoryEntry{}, fmt.Errorf("%w: %w", ErrGateway, err)
	}
	old := ref.Price
	entry = model.HistoryEntry{
		ID:          newEntryID(),
		Kind:        model.EntryPrice,
		ProductID:   ref.ID,
		ProductCode: ref.Code,
		Description: ref.DisplayName,
		OldPrice:    &old,
		NewPrice:    &price,
		CommittedAt: time.Now().UTC(),
	}
	ok = true
	obs.Logger.Info("price_committed",
		"entry_id", entry.ID,
		"code", ref.Code,
		"old_price", old.String(),
		"price", price.String(),
	)
	return entry, nil
}

// undoPrice writes entry's old price back. The caller has already set the
// processing flag.
func (c *Controller) undoPrice(ctx context.Context, entry model.HistoryEntry) (out model.HistoryEntry, err error) {
	ref := model.ProductRef{ID: entry.ProductID, Code: entry.ProductCode, DisplayName: entry.Description}
	var restore decimal.Decimal
	if entry.OldPrice != nil {
		restore = *entry.OldPrice
	}
	ok := false
	defer func() {
		c.mu.Lock()
		c.processing = false
		if ok {
			out = c.markRevertedLocked(entry.ID, time.Now().UTC())
			if !c.closed {
				if c.product != nil && c.product.Code == ref.Code {
					c.product.Price = restore
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
			c.record(model.AdjustmentReverted, out, 0, &restore)
		}
	}()

	if err := c.gw.SetPrice(ctx, ref, restore); err != nil {
		obs.Logger.Warn("price_undo_failed", "entry_id", entry.ID, "code", ref.Code, "price", restore.String(), "error", err)
		return model.HistoryEntry{}, fmt.Errorf("%w: %w", ErrGateway, err)
	}
	ok = true
	obs.Logger.Info("price_reverted", "entry_id", entry.ID, "code", ref.Code, "price", restore.String())
	return entry, nil
}
