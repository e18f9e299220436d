package handlers

import (
	"errors"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/ArowuTest/lottery-odds/internal/models"
	"github.com/ArowuTest/lottery-odds/internal/store"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// ProgressEvent is one update pushed to websocket subscribers.
type ProgressEvent struct {
	RunID     uuid.UUID        `json:"run_id"`
	Completed int              `json:"completed"`
	Total     int              `json:"total"`
	Status    models.RunStatus `json:"status"`
}

// ProgressHub fans out progress events of running simulations. Slow
// subscribers miss intermediate events; the final event is always delivered
// because the channel is closed after it.
type ProgressHub struct {
	mu   sync.Mutex
	subs map[uuid.UUID]map[chan ProgressEvent]struct{}
}

func NewProgressHub() *ProgressHub {
	return &ProgressHub{subs: make(map[uuid.UUID]map[chan ProgressEvent]struct{})}
}

// Subscribe registers for events of run id. The channel is closed once the
// run finishes; call cancel to stop listening earlier.
func (h *ProgressHub) Subscribe(id uuid.UUID) (<-chan ProgressEvent, func()) {
	ch := make(chan ProgressEvent, 16)
	h.mu.Lock()
	if h.subs[id] == nil {
		h.subs[id] = make(map[chan ProgressEvent]struct{})
	}
	h.subs[id][ch] = struct{}{}
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if set, ok := h.subs[id]; ok {
			if _, ok := set[ch]; ok {
				delete(set, ch)
				close(ch)
			}
			if len(set) == 0 {
				delete(h.subs, id)
			}
		}
	}
	return ch, cancel
}

// Publish sends ev to every subscriber that has room for it.
func (h *ProgressHub) Publish(ev ProgressEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs[ev.RunID] {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Finish delivers the final event and closes every subscription of the run.
func (h *ProgressHub) Finish(ev ProgressEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs[ev.RunID] {
		// Make room: the final event matters more than a stale one.
		select {
		case ch <- ev:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- ev
		}
		close(ch)
	}
	delete(h.subs, ev.RunID)
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Origins are restricted by the token requirement, not by Origin.
	CheckOrigin: func(r *http.Request) bool { return true },
}

const writeWait = 10 * time.Second

// StreamProgress handles GET /api/v1/simulations/:id/progress. It upgrades
// to a websocket and writes ProgressEvent JSON messages until the run ends.
func StreamProgress(hub *ProgressHub, runs store.RunStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := uuid.Parse(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid simulation ID"})
			return
		}

		// Subscribe before reading the run: a run saved as finished after
		// this point is guaranteed to close the channel.
		events, cancel := hub.Subscribe(id)
		defer cancel()

		run, err := runs.GetRun(c.Request.Context(), id)
		if err != nil {
			if errors.Is(err, models.ErrRunNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "Simulation not found"})
			} else {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load simulation: " + err.Error()})
			}
			return
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			log.Printf("progress websocket upgrade for %s failed: %v", id, err)
			return
		}
		defer conn.Close()

		// Reader: notices the client going away.
		gone := make(chan struct{})
		go func() {
			defer close(gone)
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		send := func(ev ProgressEvent) bool {
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			return conn.WriteJSON(ev) == nil
		}

		ok := send(ProgressEvent{RunID: id, Completed: run.CompletedTrials, Total: run.Iterations, Status: run.Status})
		if ok && run.Status == models.RunRunning {
		loop:
			for {
				select {
				case ev, ok := <-events:
					if !ok || !send(ev) {
						break loop
					}
				case <-gone:
					return
				}
			}
		}
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "done"))
	}
}
