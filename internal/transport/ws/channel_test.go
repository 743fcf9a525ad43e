package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/matheus3301/chatsync/internal/transport"
	"github.com/stretchr/testify/require"
)

// pushServer accepts push connections and hands each one to the test.
type pushServer struct {
	*httptest.Server
	conns chan *websocket.Conn
	auth  atomic.Value
	quit  chan struct{}
}

func newPushServer(t *testing.T) *pushServer {
	t.Helper()
	ps := &pushServer{conns: make(chan *websocket.Conn, 4), quit: make(chan struct{})}
	ps.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != streamPath {
			http.NotFound(w, r)
			return
		}
		ps.auth.Store(r.Header.Get("Authorization"))
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		ps.conns <- conn
		<-ps.quit
	}))
	t.Cleanup(func() {
		close(ps.quit)
		ps.Close()
	})
	return ps
}

func (ps *pushServer) next(t *testing.T) *websocket.Conn {
	t.Helper()
	select {
	case c := <-ps.conns:
		return c
	case <-time.After(5 * time.Second):
		t.Fatal("client did not connect")
		return nil
	}
}

func writeFrame(t *testing.T, conn *websocket.Conn, f transport.Frame) {
	t.Helper()
	b, err := json.Marshal(f)
	require.NoError(t, err)
	require.NoError(t, conn.Write(context.Background(), websocket.MessageText, b))
}

func readFrame(t *testing.T, conn *websocket.Conn) transport.Frame {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, b, err := conn.Read(ctx)
	require.NoError(t, err)
	var f transport.Frame
	require.NoError(t, json.Unmarshal(b, &f))
	return f
}

func startChannel(t *testing.T, ps *pushServer) *Channel {
	t.Helper()
	ch, err := New(ps.URL, WithToken("secret"), WithBackoff(5*time.Millisecond, 20*time.Millisecond))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- ch.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		require.ErrorIs(t, <-done, context.Canceled)
	})
	return ch
}

func TestChannelDispatchesAndAcks(t *testing.T) {
	ps := newPushServer(t)
	ch := startChannel(t, ps)

	got := make(chan string, 1)
	ch.Subscribe("message-added", func(raw []byte) { got <- string(raw) })
	ch.Subscribe("other", func([]byte) { t.Error("unexpected dispatch") })

	conn := ps.next(t)
	require.Equal(t, "Bearer secret", ps.auth.Load())

	writeFrame(t, conn, transport.Frame{ID: "f1", Type: "message-added", Data: json.RawMessage(`{"conversationId":"c1"}`)})
	require.Equal(t, transport.Frame{ID: "f1", Type: transport.FrameAck}, readFrame(t, conn))

	select {
	case raw := <-got:
		require.JSONEq(t, `{"conversationId":"c1"}`, raw)
	case <-time.After(5 * time.Second):
		t.Fatal("handler not called")
	}
	require.True(t, ch.Connected())
}

func TestChannelSignalsResetAfterReconnect(t *testing.T) {
	ps := newPushServer(t)
	ch := startChannel(t, ps)

	var resets atomic.Int32
	ch.OnReset(func() { resets.Add(1) })

	first := ps.next(t)
	require.Zero(t, resets.Load())

	first.Close(websocket.StatusGoingAway, "restart")
	second := ps.next(t)
	require.Eventually(t, func() bool { return resets.Load() == 1 }, 5*time.Second, time.Millisecond)
	require.EqualValues(t, 1, ch.Resets())

	got := make(chan struct{}, 1)
	ch.Subscribe("conversation-added", func([]byte) { got <- struct{}{} })
	writeFrame(t, second, transport.Frame{ID: "f2", Type: "conversation-added", Data: json.RawMessage(`{}`)})
	readFrame(t, second)
	select {
	case <-got:
	case <-time.After(5 * time.Second):
		t.Fatal("handler not called after reconnect")
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	ps := newPushServer(t)
	ch := startChannel(t, ps)

	var calls atomic.Int32
	unsub := ch.Subscribe("message-added", func([]byte) { calls.Add(1) })
	conn := ps.next(t)

	writeFrame(t, conn, transport.Frame{ID: "a", Type: "message-added"})
	readFrame(t, conn)
	require.Eventually(t, func() bool { return calls.Load() == 1 }, 5*time.Second, time.Millisecond)

	unsub()
	unsub()
	writeFrame(t, conn, transport.Frame{ID: "b", Type: "message-added"})
	readFrame(t, conn)
	writeFrame(t, conn, transport.Frame{ID: "c", Type: "message-added"})
	readFrame(t, conn)
	require.EqualValues(t, 1, calls.Load())
}

func TestNewRewritesScheme(t *testing.T) {
	ch, err := New("https://chat.example.com/")
	require.NoError(t, err)
	require.Equal(t, "wss://chat.example.com/v1/ws", ch.url)

	_, err = New("ftp://chat.example.com")
	require.Error(t, err)
}
