package cli

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	httpadapter "github.com/dkeye/OnAir/internal/adapters/http"
	"github.com/dkeye/OnAir/internal/app"
	"github.com/dkeye/OnAir/internal/app/orch"
	"github.com/dkeye/OnAir/internal/config"
	"github.com/dkeye/OnAir/internal/domain"
	"github.com/dkeye/OnAir/internal/logging"
	"github.com/dkeye/OnAir/internal/media"
	"github.com/dkeye/OnAir/internal/protocol"
)

// The in-process server reads the global logger from its own goroutines,
// so commands under test must not replace it.
func TestMain(m *testing.M) {
	installLogger = func(logging.Config, io.Writer) {}
	os.Exit(m.Run())
}

func startServer(t *testing.T) (string, *orch.Orchestrator) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	o := orch.New(app.NewRegistry(), app.SimplePolicy{}, orch.Options{})
	done := make(chan struct{})
	go func() {
		_ = o.Run(ctx)
		close(done)
	}()
	cfg := &config.Config{
		Mode:       "test",
		StaticPath: t.TempDir(),
		Secret:     "test-secret",
	}
	srv := httptest.NewServer(httpadapter.SetupRouter(ctx, cfg, o, nil))
	t.Cleanup(func() {
		srv.Close()
		cancel()
		<-done
	})
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws", o
}

func run(t *testing.T, server string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := NewRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(append([]string{"--server", server, "--timeout", "3s", "--log-level", "error"}, args...))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestSelectAndDeselect(t *testing.T) {
	server, o := startServer(t)

	out, err := run(t, server, "select", "cam-1")
	require.NoError(t, err)
	assert.Contains(t, out, `"channelSelected"`)

	v, err := o.State(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.SelectionSingle, v.Selection.Mode)
	assert.Equal(t, domain.ChannelID("cam-1"), v.Selection.Channel)

	_, err = run(t, server, "deselect")
	require.NoError(t, err)
	v, err = o.State(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.SelectionNone, v.Selection.Mode)
}

func TestSelectMany(t *testing.T) {
	server, o := startServer(t)

	out, err := run(t, server, "select-many", "b", "a", "b")
	require.NoError(t, err)
	assert.Contains(t, out, `"multipleChannelsSelected"`)

	v, err := o.State(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.SelectionMulti, v.Selection.Mode)
	assert.ElementsMatch(t, []domain.ChannelID{"a", "b"}, v.Selection.Channels)
}

func TestSubmitApproveMessages(t *testing.T) {
	server, o := startServer(t)

	out, err := run(t, server, "submit", "alice", "hello", "there")
	require.NoError(t, err)
	assert.Contains(t, out, `"success": true`)

	out, err = run(t, server, "approve", "1")
	require.NoError(t, err)
	assert.Contains(t, out, `"messageApproved"`)

	out, err = run(t, server, "messages")
	require.NoError(t, err)
	assert.Contains(t, out, "hello there")

	data, err := o.Messages(context.Background())
	require.NoError(t, err)
	assert.Empty(t, data.Queue)
	require.Len(t, data.Published, 1)
	assert.Equal(t, "alice", data.Published[0].Name)
}

func TestSubmitInvalidIsReported(t *testing.T) {
	server, _ := startServer(t)

	out, err := run(t, server, "submit", "alice", strings.Repeat("x", domain.MaxTextLen+1))
	require.NoError(t, err)
	assert.NotContains(t, out, `"success": true`)
	assert.Contains(t, out, `"error"`)
}

func TestSay(t *testing.T) {
	server, _ := startServer(t)

	out, err := run(t, server, "say", "stand", "by")
	require.NoError(t, err)
	assert.Contains(t, out, `"editorMessageReceived"`)
	assert.Contains(t, out, "stand by")
}

func TestApproveRejectsBadID(t *testing.T) {
	_, err := run(t, "ws://127.0.0.1:1/ws", "approve", "abc")
	assert.ErrorContains(t, err, "invalid message id")

	_, err = run(t, "ws://127.0.0.1:1/ws", "reject", "0")
	assert.ErrorContains(t, err, "invalid message id")
}

func TestCountdownAndCancel(t *testing.T) {
	server, o := startServer(t)

	out, err := run(t, server, "countdown", "-s", "30", "cam-1")
	require.NoError(t, err)
	assert.Contains(t, out, `"countdownStart"`)

	v, err := o.State(context.Background())
	require.NoError(t, err)
	require.NotNil(t, v.Countdown)

	_, err = run(t, server, "cancel")
	require.NoError(t, err)
	assert.Eventually(t, func() bool {
		v, err := o.State(context.Background())
		return err == nil && v.Countdown == nil
	}, 3*time.Second, 20*time.Millisecond)
}

func TestChannels(t *testing.T) {
	gw := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `[{"channelId":"a"},{"channelId":"b"}]`)
	}))
	defer gw.Close()

	out, err := run(t, "ws://unused/ws", "channels", "--whep-gateway", gw.URL)
	require.NoError(t, err)
	assert.Contains(t, out, "a\t"+gw.URL+"/whep/a")
	assert.Contains(t, out, "b\t"+gw.URL+"/whep/b")
}

func TestChannelsRequiresGateway(t *testing.T) {
	t.Setenv("WHEP_GATEWAY_URL", "")
	t.Setenv("ONAIRCTL_WHEP_GATEWAY_URL", "")
	_, err := run(t, "ws://unused/ws", "channels")
	assert.Error(t, err)
}

func TestRootConfiguresLogging(t *testing.T) {
	var got logging.Config
	prev := installLogger
	installLogger = func(cfg logging.Config, _ io.Writer) { got = cfg }
	t.Cleanup(func() { installLogger = prev })

	_, err := run(t, "ws://127.0.0.1:1/ws", "approve", "abc")
	require.Error(t, err)
	assert.Equal(t, "error", got.Level)
	assert.Equal(t, "onairctl", got.ServiceName)
}

func TestParticipantRequiresSource(t *testing.T) {
	_, err := run(t, "ws://unused/ws", "participant")
	assert.ErrorContains(t, err, "--whip-endpoint")
}

type fakeFeed struct {
	ch       domain.ChannelID
	startErr error

	mu      sync.Mutex
	started bool
	stopped bool
}

func (f *fakeFeed) Start(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started = f.startErr == nil
	return f.startErr
}

func (f *fakeFeed) Stop(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped = true
	return nil
}

func (f *fakeFeed) ChannelID() domain.ChannelID { return f.ch }

func newTestParticipant(self domain.ChannelID) (*participant, *bytes.Buffer, *[]*fakeFeed) {
	var out bytes.Buffer
	feeds := &[]*fakeFeed{}
	p := newParticipant(self, &out, func(ch domain.ChannelID) media.Feed {
		f := &fakeFeed{ch: ch}
		*feeds = append(*feeds, f)
		return f
	})
	return p, &out, feeds
}

func TestParticipant_OnAir(t *testing.T) {
	p, out, _ := newTestParticipant("me")
	ctx := context.Background()

	p.handle(ctx, protocol.Event{Type: protocol.TypeChannelSelected, ChannelID: "other"})
	assert.Empty(t, out.String())

	p.handle(ctx, protocol.Event{Type: protocol.TypeChannelSelected, ChannelID: "me"})
	p.handle(ctx, protocol.Event{Type: protocol.TypeChannelSelected, ChannelID: "me"})
	assert.Equal(t, "ON AIR\n", out.String())

	p.handle(ctx, protocol.Event{Type: protocol.TypeMultipleChannelsSelected, ChannelIDs: []domain.ChannelID{"a", "me"}})
	assert.Equal(t, "ON AIR\n", out.String())

	p.handle(ctx, protocol.Event{Type: protocol.TypeChannelDeselected})
	assert.Equal(t, "ON AIR\noff air\n", out.String())
}

func TestParticipant_Countdown(t *testing.T) {
	p, out, _ := newTestParticipant("me")
	ctx := context.Background()

	p.handle(ctx, protocol.Event{Type: protocol.TypeCountdownStart, ChannelID: "other", Seconds: 5})
	p.handle(ctx, protocol.Event{Type: protocol.TypeCountdownStart, ChannelIDs: []domain.ChannelID{"me", "x"}, Seconds: 5})
	p.handle(ctx, protocol.Event{Type: protocol.TypeCountdownUpdate, ChannelIDs: []domain.ChannelID{"me", "x"}, Seconds: 4})
	p.handle(ctx, protocol.Event{Type: protocol.TypeCountdownCancelled, ChannelIDs: []domain.ChannelID{"me", "x"}, Seconds: 4})

	assert.Equal(t, "on air in 5\non air in 4\ncountdown cancelled\n", out.String())
}

func TestParticipant_PairingDrivesPlayback(t *testing.T) {
	p, out, feeds := newTestParticipant("me")
	ctx := context.Background()

	p.handle(ctx, protocol.Event{Type: protocol.TypeParticipantPaired, ParticipantA: "x", ParticipantB: "y"})
	assert.Empty(t, *feeds)

	p.handle(ctx, protocol.Event{Type: protocol.TypeParticipantPaired, ParticipantA: "partner", ParticipantB: "me"})
	require.Len(t, *feeds, 1)
	assert.Equal(t, domain.ChannelID("partner"), (*feeds)[0].ch)
	assert.True(t, (*feeds)[0].started)

	// repeated pairing with the same partner keeps the player
	p.handle(ctx, protocol.Event{Type: protocol.TypeParticipantPaired, ParticipantA: "me", ParticipantB: "partner"})
	assert.Len(t, *feeds, 1)

	// re-pairing elsewhere stops playback
	p.handle(ctx, protocol.Event{Type: protocol.TypeParticipantPaired, ParticipantA: "x", ParticipantB: "y"})
	assert.True(t, (*feeds)[0].stopped)

	p.handle(ctx, protocol.Event{Type: protocol.TypeParticipantPaired, ParticipantA: "me", ParticipantB: "z"})
	require.Len(t, *feeds, 2)
	p.handle(ctx, protocol.Event{Type: protocol.TypeParticipantUnpaired, ParticipantA: "me", ParticipantB: "z"})
	assert.True(t, (*feeds)[1].stopped)
	assert.Contains(t, out.String(), "paired with partner")
	assert.Contains(t, out.String(), "unpaired")
}

func TestParticipant_PlayerStartFailure(t *testing.T) {
	var out bytes.Buffer
	p := newParticipant("me", &out, func(ch domain.ChannelID) media.Feed {
		return &fakeFeed{ch: ch, startErr: errors.New("gateway down")}
	})
	p.handle(context.Background(), protocol.Event{Type: protocol.TypeParticipantPaired, ParticipantA: "me", ParticipantB: "p"})
	assert.Contains(t, out.String(), "gateway down")
	assert.Nil(t, p.player)
}

func TestParticipant_PlayerEndedClearsPartner(t *testing.T) {
	p, out, feeds := newTestParticipant("me")
	ctx := context.Background()

	p.handle(ctx, protocol.Event{Type: protocol.TypeParticipantPaired, ParticipantA: "me", ParticipantB: "partner"})
	require.Len(t, *feeds, 1)

	p.playerEnded("someone-else")
	assert.NotNil(t, p.player)

	p.playerEnded("partner")
	assert.Nil(t, p.player)
	assert.Contains(t, out.String(), "partner partner feed ended")

	// a later unpair has nothing left to stop
	p.handle(ctx, protocol.Event{Type: protocol.TypeParticipantUnpaired, ParticipantA: "me", ParticipantB: "partner"})
	assert.False(t, (*feeds)[0].stopped)

	// pairing again starts a fresh player
	p.handle(ctx, protocol.Event{Type: protocol.TypeParticipantPaired, ParticipantA: "me", ParticipantB: "partner"})
	assert.Len(t, *feeds, 2)
}

func TestParticipant_Messages(t *testing.T) {
	p, out, _ := newTestParticipant("me")
	p.handle(context.Background(), protocol.Event{
		Type:    protocol.TypeEditorMessageReceived,
		Message: &domain.Message{ID: 3, Name: domain.ModeratorName, Text: "30 seconds"},
	})
	assert.Equal(t, "["+domain.ModeratorName+"] 30 seconds\n", out.String())
}

func TestParticipant_JoinsAndLeaves(t *testing.T) {
	server, o := startServer(t)

	ctx, cancel := context.WithCancel(context.Background())
	var out bytes.Buffer
	cmd := NewRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs([]string{"--server", server, "--log-level", "error", "participant", "--channel", "cam-9"})
	errc := make(chan error, 1)
	go func() { errc <- cmd.ExecuteContext(ctx) }()

	require.Eventually(t, func() bool {
		v, err := o.State(context.Background())
		return err == nil && len(v.Participants) == 1 && v.Participants[0] == "cam-9"
	}, 3*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-errc:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("participant did not exit")
	}

	assert.Eventually(t, func() bool {
		v, err := o.State(context.Background())
		return err == nil && len(v.Participants) == 0
	}, 3*time.Second, 20*time.Millisecond)
}
