package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	gorillawebsocket "github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinic/clinic/internal/platform/apperr"
	"github.com/clinic/clinic/internal/platform/auth"
	"github.com/clinic/clinic/internal/platform/events"
)

func received(c *Client) []events.Event {
	var out []events.Event
	for {
		select {
		case data, ok := <-c.Send:
			if !ok {
				return out
			}
			var ev events.Event
			_ = json.Unmarshal(data, &ev)
			out = append(out, ev)
		default:
			return out
		}
	}
}

func TestHub_PublishFiltersByPattern(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	appts := newClient(uuid.New(), []string{"appointment.*"})
	all := newClient(uuid.New(), []string{"*"})
	require.True(t, hub.Register(appts))
	require.True(t, hub.Register(all))

	ctx := context.Background()
	require.NoError(t, hub.Publish(ctx, events.New(events.AppointmentCreated, nil)))
	require.NoError(t, hub.Publish(ctx, events.New(events.InvoicePaid, nil)))

	got := received(appts)
	require.Len(t, got, 1)
	assert.Equal(t, events.AppointmentCreated, got[0].Type)
	assert.Len(t, received(all), 2)
}

func TestHub_SubscribeAndUnsubscribe(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	c := newClient(uuid.New(), DefaultPatterns)
	hub.Register(c)

	hub.ProcessMessage(c, ClientMessage{Action: "subscribe", Patterns: []string{" audit.* ", ""}})
	hub.ProcessMessage(c, ClientMessage{Action: "unsubscribe", Patterns: []string{"invoice.*"}})
	hub.ProcessMessage(c, ClientMessage{Action: "bogus", Patterns: []string{"x.*"}})

	assert.ElementsMatch(t, []string{"appointment.*", "audit.*"}, hub.Patterns(c))

	_ = hub.Publish(context.Background(), events.New(events.InvoicePaid, nil))
	_ = hub.Publish(context.Background(), events.New(events.RecordAccessed, nil))
	got := received(c)
	require.Len(t, got, 1)
	assert.Equal(t, events.RecordAccessed, got[0].Type)
}

func TestHub_FullBufferDropsEvent(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	c := newClient(uuid.New(), []string{"*"})
	hub.Register(c)

	for i := 0; i < sendBuffer+5; i++ {
		require.NoError(t, hub.Publish(context.Background(), events.New(events.InvoicePaid, nil)))
	}
	assert.Len(t, received(c), sendBuffer)
}

func TestHub_UnregisterClosesSend(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	c := newClient(uuid.New(), nil)
	hub.Register(c)
	hub.Unregister(c)
	hub.Unregister(c)

	assert.Equal(t, 0, hub.ClientCount())
	_, ok := <-c.Send
	assert.False(t, ok)
}

func TestHub_CloseRefusesNewClients(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	c := newClient(uuid.New(), nil)
	hub.Register(c)

	require.NoError(t, hub.Close())
	require.NoError(t, hub.Close())
	_, ok := <-c.Send
	assert.False(t, ok)
	assert.False(t, hub.Register(newClient(uuid.New(), nil)))
	hub.Unregister(c)
}

func TestHub_InFanout(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	mem := &events.Memory{}
	c := newClient(uuid.New(), []string{"invoice.*"})
	hub.Register(c)

	events.NewEmitter(events.Fanout{mem, hub}, zerolog.Nop()).Emit(context.Background(), events.InvoicePaid, map[string]string{"id": "i1"})

	assert.Equal(t, []string{events.InvoicePaid}, mem.Types())
	assert.Len(t, received(c), 1)
}

// streamServer serves the handler behind a stub that attaches ident.
func streamServer(t *testing.T, hub *Hub, ident *auth.Identity, origins []string) *httptest.Server {
	t.Helper()
	e := echo.New()
	e.HTTPErrorHandler = apperr.HTTPErrorHandler(zerolog.Nop())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if ident != nil {
				c.SetRequest(c.Request().WithContext(auth.WithIdentity(c.Request().Context(), ident)))
			}
			return next(c)
		}
	})
	NewHandler(hub, origins, zerolog.Nop()).RegisterRoutes(e.Group("/api/v1"))
	srv := httptest.NewServer(e)
	t.Cleanup(srv.Close)
	return srv
}

func wsURL(srv *httptest.Server, path string) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + path
}

func TestHandler_StreamsEvents(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	ident := &auth.Identity{ID: uuid.New(), Role: auth.RoleReceptionist}
	srv := streamServer(t, hub, ident, []string{"*"})

	conn, _, err := gorillawebsocket.DefaultDialer.Dial(wsURL(srv, "/api/v1/events/stream?events=invoice.*"), nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	_ = hub.Publish(context.Background(), events.New(events.AppointmentCreated, nil))
	_ = hub.Publish(context.Background(), events.New(events.InvoicePaid, map[string]string{"invoice_id": "i1"}))

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var ev events.Event
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, events.InvoicePaid, ev.Type)

	conn.Close()
	require.Eventually(t, func() bool { return hub.ClientCount() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestHandler_SubscribeOverSocket(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	ident := &auth.Identity{ID: uuid.New(), Role: auth.RoleAdmin}
	srv := streamServer(t, hub, ident, nil)

	conn, _, err := gorillawebsocket.DefaultDialer.Dial(wsURL(srv, "/api/v1/events/stream?events=invoice.paid"), nil)
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, conn.WriteJSON(ClientMessage{Action: "subscribe", Patterns: []string{"appointment.*"}}))
	var client *Client
	require.Eventually(t, func() bool {
		hub.mu.RLock()
		for c := range hub.clients {
			client = c
		}
		hub.mu.RUnlock()
		return len(hub.Patterns(client)) == 2
	}, 2*time.Second, 10*time.Millisecond)

	_ = hub.Publish(context.Background(), events.New(events.AppointmentStatusChanged, nil))
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var ev events.Event
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, events.AppointmentStatusChanged, ev.Type)
}

func TestHandler_RejectsForeignOrigin(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	ident := &auth.Identity{ID: uuid.New(), Role: auth.RoleAdmin}
	srv := streamServer(t, hub, ident, []string{"https://clinic.example"})

	header := http.Header{"Origin": []string{"https://evil.example"}}
	_, resp, err := gorillawebsocket.DefaultDialer.Dial(wsURL(srv, "/api/v1/events/stream"), header)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, 0, hub.ClientCount())
}

func TestHandler_RequiresStaff(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	ident := &auth.Identity{ID: uuid.New(), Role: auth.RolePatient}
	srv := streamServer(t, hub, ident, nil)

	_, resp, err := gorillawebsocket.DefaultDialer.Dial(wsURL(srv, "/api/v1/events/stream"), nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}
