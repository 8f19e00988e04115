package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/fairyhunter13/stock-adjustment-service/internal/session"
)

// streamHandler sends the current state and then every newer one as
// server-sent events. Slow clients skip intermediate versions.
func (a *App) streamHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		WriteJSONError(w, http.StatusMethodNotAllowed, "method_not_allowed", "")
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		WriteJSONError(w, http.StatusInternalServerError, "streaming_unsupported", "")
		return
	}

	updates := make(chan session.State, 1)
	unsubscribe := a.Session.Subscribe(func(st session.State) {
		for {
			select {
			case updates <- st:
				return
			default:
			}
			// keep only the newest state
			select {
			case <-updates:
			default:
			}
		}
	})
	defer unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	var last uint64
	send := func(st session.State) error {
		if last != 0 && st.Version <= last {
			return nil
		}
		last = st.Version
		body, err := json.Marshal(st)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, "id: %d\nevent: state\ndata: %s\n\n", st.Version, body); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	}
	if err := send(a.Session.State()); err != nil {
		return
	}
	for {
		select {
		case <-r.Context().Done():
			return
		case st := <-updates:
			if err := send(st); err != nil {
				return
			}
		}
	}
}
