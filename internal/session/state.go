package session

import "github.com/fairyhunter13/stock-adjustment-service/internal/model"

// State is an immutable snapshot of the session handed to presentation code.
type State struct {
	Version           uint64               `json:"version"`
	SessionID         string               `json:"session_id"`
	Code              string               `json:"code"`
	Lookup            model.LookupStatus   `json:"lookup"`
	Busy              bool                 `json:"busy"`
	Product           *model.ProductRef    `json:"product,omitempty"`
	Stock             *model.StockSnapshot `json:"stock,omitempty"`
	DisplayedQuantity int64                `json:"displayed_quantity"`
	Pending           int64                `json:"pending"`
	Processing        bool                 `json:"processing"`
	CanCommit         bool                 `json:"can_commit"`
	AwaitingScan      bool                 `json:"awaiting_scan"`
	History           []model.HistoryEntry `json:"history"`
	Notice            *model.Notification  `json:"notice,omitempty"`
}

// LatestActive returns the newest history entry that is not reverted.
func (s State) LatestActive() (model.HistoryEntry, bool) {
	for _, e := range s.History {
		if !e.Reverted {
			return e, true
		}
	}
	return model.HistoryEntry{}, false
}

func (c *Controller) stateLocked() State {
	st := State{
		Version:           c.version,
		SessionID:         c.opts.SessionID,
		Code:              c.code,
		Lookup:            c.lookup,
		Busy:              c.busy,
		DisplayedQuantity: c.displayed,
		Pending:           c.pending,
		Processing:        c.processing,
		CanCommit:         c.product != nil && c.stock != nil && !c.processing,
		AwaitingScan:      c.awaitingScan,
		History:           make([]model.HistoryEntry, len(c.history)),
	}
	copy(st.History, c.history)
	if c.product != nil {
		p := *c.product
		st.Product = &p
	}
	if c.stock != nil {
		s := *c.stock
		st.Stock = &s
	}
	if c.notice != nil {
		n := *c.notice
		st.Notice = &n
	}
	return st
}
