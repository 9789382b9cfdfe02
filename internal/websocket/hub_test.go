package websocket

import (
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"testing"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeClient has a send buffer but no connection; tests read the buffer
// directly.
func fakeClient(hub *Hub, userID int64, isAdmin bool) *Client {
	return &Client{
		hub:     hub,
		send:    make(chan []byte, sendBufferSize),
		userID:  userID,
		isAdmin: isAdmin,
		logger:  hub.logger,
	}
}

// drain returns every message queued for c without blocking.
func drain(t *testing.T, c *Client) []Message {
	t.Helper()
	var out []Message
	for {
		select {
		case data, ok := <-c.send:
			if !ok {
				return out
			}
			var m Message
			if err := json.Unmarshal(data, &m); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			out = append(out, m)
		default:
			return out
		}
	}
}

func TestHubMembership(t *testing.T) {
	hub := NewHub(quietLogger())
	a := fakeClient(hub, 1, false)
	b := fakeClient(hub, 2, false)

	hub.Register(a)
	hub.Register(b)
	if got := hub.ClientCount(); got != 2 {
		t.Fatalf("count = %d, want 2", got)
	}

	hub.Unregister(a)
	hub.Unregister(a)
	if got := hub.ClientCount(); got != 1 {
		t.Fatalf("count after unregister = %d, want 1", got)
	}
	if _, ok := <-a.send; ok {
		t.Error("unregistered client's send channel should be closed")
	}

	hub.Unregister(b)
	if got := hub.ClientCount(); got != 0 {
		t.Fatalf("count = %d, want 0", got)
	}
}

func TestHubRouting(t *testing.T) {
	tests := []struct {
		name string
		send func(*Hub, Message)
		want map[string]bool
	}{
		{
			name: "broadcast",
			send: func(h *Hub, m Message) { h.Broadcast(m) },
			want: map[string]bool{"owner": true, "ownerTab": true, "other": true, "admin": true},
		},
		{
			name: "notify owner",
			send: func(h *Hub, m Message) { h.Notify(1, m) },
			want: map[string]bool{"owner": true, "ownerTab": true},
		},
		{
			name: "notify admins",
			send: func(h *Hub, m Message) { h.NotifyAdmins(m) },
			want: map[string]bool{"admin": true},
		},
		{
			name: "notify absent user",
			send: func(h *Hub, m Message) { h.Notify(99, m) },
			want: map[string]bool{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hub := NewHub(quietLogger())
			clients := map[string]*Client{
				"owner":    fakeClient(hub, 1, false),
				"ownerTab": fakeClient(hub, 1, false),
				"other":    fakeClient(hub, 2, false),
				"admin":    fakeClient(hub, 3, true),
			}
			for _, c := range clients {
				hub.Register(c)
			}

			tt.send(hub, NewMessage(EntityItem, ActionApproved, 42, map[string]any{"points": float64(10)}))

			for name, c := range clients {
				got := drain(t, c)
				if !tt.want[name] {
					if len(got) != 0 {
						t.Errorf("%s received %d messages, want none", name, len(got))
					}
					continue
				}
				if len(got) != 1 {
					t.Fatalf("%s received %d messages, want 1", name, len(got))
				}
				m := got[0]
				if m.Type != "item_approved" || m.ID != 42 || m.Extra["points"] != float64(10) {
					t.Errorf("%s got %+v", name, m)
				}
			}
		})
	}
}

func TestHubDropsForSlowClient(t *testing.T) {
	hub := NewHub(quietLogger())
	slow := fakeClient(hub, 1, false)
	fast := fakeClient(hub, 2, false)
	hub.Register(slow)
	hub.Register(fast)

	for i := 0; i < sendBufferSize; i++ {
		hub.Notify(1, NewMessage(EntityItem, ActionListed, int64(i), nil))
	}
	hub.Broadcast(NewMessage(EntityItem, ActionRedeemed, 999, nil))

	if got := len(drain(t, slow)); got != sendBufferSize {
		t.Errorf("slow client got %d messages, want %d", got, sendBufferSize)
	}
	got := drain(t, fast)
	if len(got) != 1 || got[0].ID != 999 {
		t.Errorf("fast client got %+v, want the broadcast", got)
	}
}

func TestNewMessage(t *testing.T) {
	m := NewMessage(EntityItem, ActionRejected, 5, nil)
	if m.Type != "item_rejected" || m.Entity != EntityItem || m.Action != ActionRejected || m.ID != 5 {
		t.Errorf("NewMessage = %+v", m)
	}

	data, err := json.Marshal(NewMessage(EntitySession, ActionPong, 0, nil))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if got := string(data); got != `{"type":"session_pong","entity":"session","action":"pong"}` {
		t.Errorf("pong frame = %s", got)
	}
}

func TestClientEnqueue(t *testing.T) {
	hub := NewHub(quietLogger())
	c := fakeClient(hub, 4, false)

	for i := 0; i < sendBufferSize+3; i++ {
		c.enqueue(NewMessage(EntitySession, ActionPong, 0, nil))
	}
	if got := len(drain(t, c)); got != sendBufferSize {
		t.Errorf("queued %d frames, want %d", got, sendBufferSize)
	}
}

func TestHubConcurrentAccess(t *testing.T) {
	hub := NewHub(quietLogger())
	var wg sync.WaitGroup

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			c := fakeClient(hub, id, id%2 == 0)
			hub.Register(c)
			hub.Broadcast(NewMessage(EntityItem, ActionListed, id, nil))
			hub.Notify(id, NewMessage(EntityItem, ActionApproved, id, nil))
			hub.NotifyAdmins(NewMessage(EntityItem, ActionPending, id, nil))
			hub.Unregister(c)
		}(int64(i))
	}
	wg.Wait()

	if got := hub.ClientCount(); got != 0 {
		t.Errorf("count = %d, want 0", got)
	}
}
