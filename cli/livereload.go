package cli

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"oss.terrastruct.com/d2render/lib/xhttp"
)

// compileResult is the message live reload pages receive after every render.
type compileResult struct {
	SVG string `json:"svg"`
	Err string `json:"err"`
}

// hub fans render results out to live reload clients. A client that falls behind
// only ever sees the latest result.
type hub struct {
	mu     sync.Mutex
	latest *compileResult
	subs   map[chan *compileResult]struct{}
	closed bool
	wg     sync.WaitGroup
}

func newHub() *hub {
	return &hub{
		subs: make(map[chan *compileResult]struct{}),
	}
}

// subscribe returns a channel primed with the latest result, or false once the hub
// is shut down.
func (h *hub) subscribe() (chan *compileResult, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, false
	}
	ch := make(chan *compileResult, 1)
	if h.latest != nil {
		ch <- h.latest
	}
	h.subs[ch] = struct{}{}
	h.wg.Add(1)
	return ch, true
}

func (h *hub) unsubscribe(ch chan *compileResult) {
	h.mu.Lock()
	delete(h.subs, ch)
	h.mu.Unlock()
	h.wg.Done()
}

// publish returns the number of clients notified.
func (h *hub) publish(res *compileResult) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.latest = res
	for ch := range h.subs {
		select {
		case <-ch:
		default:
		}
		ch <- res
	}
	return len(h.subs)
}

// shutdown refuses new clients and waits for connected ones to disconnect.
func (h *hub) shutdown() {
	h.mu.Lock()
	h.closed = true
	h.mu.Unlock()
	h.wg.Wait()
}

func (w *watcher) handleWatch(rw http.ResponseWriter, r *http.Request) error {
	results, ok := w.hub.subscribe()
	if !ok {
		return xhttp.Errorf(http.StatusServiceUnavailable, "server shutting down...", "server shutting down...")
	}
	defer w.hub.unsubscribe(results)

	c, err := websocket.Accept(rw, r, &websocket.AcceptOptions{
		CompressionMode: websocket.CompressionDisabled,
	})
	if err != nil {
		return err
	}
	defer c.CloseNow()

	// Clients never send anything. CloseRead cancels ctx when the page goes away.
	ctx := c.CloseRead(w.ctx)
	go heartbeat(ctx, c)

	for {
		select {
		case res := <-results:
			err = writeResult(ctx, c, res)
			if err != nil {
				w.ms.Log.Debug.Printf("dropping live reload client: %v", err)
				return nil
			}
		case <-ctx.Done():
			c.Close(websocket.StatusGoingAway, "server shutting down...")
			return nil
		}
	}
}

func writeResult(ctx context.Context, c *websocket.Conn, res *compileResult) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	return wsjson.Write(ctx, c, res)
}

func heartbeat(ctx context.Context, c *websocket.Conn) {
	t := time.NewTicker(30 * time.Second)
	defer t.Stop()
	for {
		err := c.Ping(ctx)
		if err != nil {
			c.CloseNow()
			return
		}
		select {
		case <-t.C:
		case <-ctx.Done():
			return
		}
	}
}
