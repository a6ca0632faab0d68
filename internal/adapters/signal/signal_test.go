package signal

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/OnAir/internal/app"
	"github.com/dkeye/OnAir/internal/app/orch"
	"github.com/dkeye/OnAir/internal/domain"
	"github.com/dkeye/OnAir/internal/protocol"
)

type testServer struct {
	srv  *httptest.Server
	orch *orch.Orchestrator
	ctx  context.Context
}

func newTestServer(t *testing.T, opts Options) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	ctx, cancel := context.WithCancel(context.Background())

	o := orch.New(app.NewRegistry(), app.SimplePolicy{}, orch.Options{TickInterval: 10 * time.Millisecond})
	done := make(chan struct{})
	go func() {
		_ = o.Run(ctx)
		close(done)
	}()

	ctl := NewSignalWSController(o, opts)
	r := gin.New()
	r.GET("/ws", func(c *gin.Context) { ctl.HandleSignal(ctx, c) })
	srv := httptest.NewServer(r)

	t.Cleanup(func() {
		srv.Close()
		cancel()
		<-done
	})
	return &testServer{srv: srv, orch: o, ctx: ctx}
}

// dial connects and waits for the whoami round trip, so the connection is
// registered before the test goes on.
func (ts *testServer) dial(t *testing.T) (*websocket.Conn, string) {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.srv.URL, "http") + "/ws"
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ws.Close() })

	send(t, ws, protocol.Command{Type: protocol.TypeWhoAmI})
	ev := recvType(t, ws, protocol.TypeWhoAmI)
	require.NotEmpty(t, ev.SessionID)
	return ws, ev.SessionID
}

func send(t *testing.T, ws *websocket.Conn, cmd protocol.Command) {
	t.Helper()
	require.NoError(t, ws.WriteJSON(cmd))
}

func recv(t *testing.T, ws *websocket.Conn) protocol.Event {
	t.Helper()
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := ws.ReadMessage()
	require.NoError(t, err)
	ev, err := protocol.DecodeEvent(data)
	require.NoError(t, err)
	return ev
}

func recvType(t *testing.T, ws *websocket.Conn, typ string) protocol.Event {
	t.Helper()
	ev := recv(t, ws)
	require.Equal(t, typ, ev.Type)
	return ev
}

func TestE2E_SubmitApproveGetMessages(t *testing.T) {
	ts := newTestServer(t, Options{})
	a, _ := ts.dial(t)
	b, _ := ts.dial(t)

	send(t, a, protocol.Command{Type: protocol.TypeSubmitMessage, Name: "Ann", Message: "Hi"})

	ev := recvType(t, a, protocol.TypeNewMessageInQueue)
	require.NotNil(t, ev.Message)
	assert.Equal(t, int64(1), ev.Message.ID)
	assert.True(t, recvType(t, a, protocol.TypeMessageSubmitted).Success)

	ev = recvType(t, b, protocol.TypeNewMessageInQueue)
	assert.Equal(t, "Ann", ev.Message.Name)

	send(t, b, protocol.Command{Type: protocol.TypeApproveMessage, MessageID: 1})
	for _, ws := range []*websocket.Conn{a, b} {
		ev = recvType(t, ws, protocol.TypeMessageApproved)
		assert.Equal(t, int64(1), ev.Message.ID)
		assert.Equal(t, domain.MessageApproved, ev.Message.Status)
	}

	send(t, a, protocol.Command{Type: protocol.TypeGetMessages})
	ev = recvType(t, a, protocol.TypeMessagesData)
	assert.Empty(t, ev.Queue)
	require.Len(t, ev.Published, 1)
	assert.Equal(t, int64(1), ev.Published[0].ID)

	// b got nothing addressed to a
	send(t, b, protocol.Command{Type: protocol.TypePing})
	recvType(t, b, protocol.TypePong)
}

func TestMalformedJSONKeepsConnectionOpen(t *testing.T) {
	ts := newTestServer(t, Options{})
	a, _ := ts.dial(t)

	require.NoError(t, a.WriteMessage(websocket.TextMessage, []byte("{not json")))
	require.NoError(t, a.WriteMessage(websocket.TextMessage, []byte(`{"no":"type"}`)))
	send(t, a, protocol.Command{Type: protocol.TypePing})
	recvType(t, a, protocol.TypePong)
}

func TestSessionIDsAreFreshPerConnection(t *testing.T) {
	ts := newTestServer(t, Options{})
	_, sid1 := ts.dial(t)
	_, sid2 := ts.dial(t)
	assert.NotEqual(t, sid1, sid2)
}

func TestSelectionReplayedOnConnect(t *testing.T) {
	ts := newTestServer(t, Options{})
	a, _ := ts.dial(t)
	send(t, a, protocol.Command{Type: protocol.TypeSelectChannel, ChannelID: "cam1"})
	recvType(t, a, protocol.TypeChannelSelected)

	url := "ws" + strings.TrimPrefix(ts.srv.URL, "http") + "/ws"
	b, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer b.Close()

	ev := recvType(t, b, protocol.TypeChannelSelected)
	assert.Equal(t, domain.ChannelID("cam1"), ev.ChannelID)
}

func TestSubmitRateLimited(t *testing.T) {
	ts := newTestServer(t, Options{SubmitLimit: 2, SubmitInterval: time.Minute})
	a, _ := ts.dial(t)

	for i := 0; i < 2; i++ {
		send(t, a, protocol.Command{Type: protocol.TypeSubmitMessage, Name: "Ann", Message: "Hi"})
		recvType(t, a, protocol.TypeNewMessageInQueue)
		assert.True(t, recvType(t, a, protocol.TypeMessageSubmitted).Success)
	}

	send(t, a, protocol.Command{Type: protocol.TypeSubmitMessage, Name: "Ann", Message: "Hi"})
	ev := recvType(t, a, protocol.TypeMessageSubmitted)
	assert.False(t, ev.Success)
	assert.Equal(t, ErrRateLimited.Error(), ev.Error)
}

func TestDisconnectUnregisters(t *testing.T) {
	ts := newTestServer(t, Options{})
	a, _ := ts.dial(t)

	v, err := ts.orch.State(ts.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, v.Clients)

	require.NoError(t, a.Close())
	require.Eventually(t, func() bool {
		v, err := ts.orch.State(ts.ctx)
		return err == nil && v.Clients == 0
	}, 2*time.Second, 10*time.Millisecond)
}
