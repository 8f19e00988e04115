// Package model defines domain types used by the service.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// ProductRef identifies a product resolved from a scanned code.
type ProductRef struct {
	ID          string          `json:"id"`
	Code        string          `json:"code"`
	DisplayName string          `json:"display_name"`
	Price       decimal.Decimal `json:"price"`
}

// Item is the gateway's answer to a lookup: the product and its remote quantity.
type Item struct {
	Product  ProductRef `json:"product"`
	Quantity int64      `json:"quantity"`
}

// StockSnapshot mirrors the remote absolute quantity of the loaded product.
type StockSnapshot struct {
	Quantity  int64     `json:"quantity"`
	FetchedAt time.Time `json:"fetched_at"`
}

// LookupStatus describes the outcome of the latest code lookup.
type LookupStatus string

const (
	LookupIdle     LookupStatus = "idle"
	LookupFound    LookupStatus = "found"
	LookupNotFound LookupStatus = "not_found"
)

// EntryKind tells stock adjustments from price changes.
type EntryKind string

const (
	EntryStock EntryKind = "stock"
	EntryPrice EntryKind = "price"
)

// HistoryEntry records one committed adjustment of the session. Stock
// entries carry Delta and BaseStockBeforeDelta; price entries carry
// OldPrice and NewPrice.
type HistoryEntry struct {
	ID                   string           `json:"id"`
	Kind                 EntryKind        `json:"kind"`
	ProductID            string           `json:"product_id"`
	ProductCode          string           `json:"product_code"`
	Description          string           `json:"description"`
	Delta                int64            `json:"delta"`
	BaseStockBeforeDelta int64            `json:"base_stock_before_delta"`
	OldPrice             *decimal.Decimal `json:"old_price,omitempty"`
	NewPrice             *decimal.Decimal `json:"new_price,omitempty"`
	CommittedAt          time.Time        `json:"committed_at"`
	Reverted             bool             `json:"reverted"`
	RevertedAt           *time.Time       `json:"reverted_at,omitempty"`
}

// NoticeLevel distinguishes success from failure notifications.
type NoticeLevel string

const (
	NoticeInfo  NoticeLevel = "info"
	NoticeError NoticeLevel = "error"
)

// Notification is a transient operator message.
type Notification struct {
	ID      uint64      `json:"id"`
	Message string      `json:"message"`
	Level   NoticeLevel `json:"level"`
	ShownAt time.Time   `json:"shown_at"`
}

// AdjustmentKind names what happened to a history entry.
type AdjustmentKind string

const (
	AdjustmentCommitted AdjustmentKind = "committed"
	AdjustmentReverted  AdjustmentKind = "reverted"
)

// AdjustmentEvent is emitted after every successful commit or undo.
type AdjustmentEvent struct {
	Sequence   uint64           `json:"sequence"`
	SessionID  string           `json:"session_id"`
	Kind       AdjustmentKind   `json:"kind"`
	Entry      HistoryEntry     `json:"entry"`
	Quantity   int64            `json:"quantity"`
	// Price is the price written by a price entry's commit or undo.
	Price      *decimal.Decimal `json:"price,omitempty"`
	OccurredAt time.Time        `json:"occurred_at"`
}
