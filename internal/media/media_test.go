package media

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/OnAir/internal/core"
	"github.com/dkeye/OnAir/internal/domain"
)

type fakeConn struct {
	mu        sync.Mutex
	label     string
	tracks    []webrtc.TrackLocal
	receivers []webrtc.RTPCodecType
	answer    string
	closed    bool
	onClosed  func()
	fired     sync.Once
}

func (f *fakeConn) Start(context.Context) error { return nil }

func (f *fakeConn) Close() {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	f.drop()
}

// drop fires the closed callback the way a remote hangup does.
func (f *fakeConn) drop() {
	f.fired.Do(func() {
		if f.onClosed != nil {
			f.onClosed()
		}
	})
}

func (f *fakeConn) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *fakeConn) AddLocalTrack(t webrtc.TrackLocal) (*webrtc.RTPSender, error) {
	f.tracks = append(f.tracks, t)
	return nil, nil
}

func (f *fakeConn) AddReceiver(kind webrtc.RTPCodecType) error {
	f.receivers = append(f.receivers, kind)
	return nil
}

func (f *fakeConn) CreateAndSetOffer() (*webrtc.SessionDescription, error) {
	return &webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "v=0 offer"}, nil
}

func (f *fakeConn) ApplyAnswer(sd webrtc.SessionDescription) error {
	f.answer = sd.SDP
	return nil
}

func (f *fakeConn) OnTrack(func(context.Context, *webrtc.TrackRemote, *webrtc.RTPReceiver)) {}
func (f *fakeConn) OnClosed(fn func())                                                      { f.onClosed = fn }

func fakeFactory(out **fakeConn) ConnFactory {
	return func(label string) (core.MediaConnection, error) {
		*out = &fakeConn{label: label}
		return *out, nil
	}
}

type gateway struct {
	mu      sync.Mutex
	offers  []string
	auth    []string
	deleted []string
}

func newGateway(t *testing.T) (*httptest.Server, *gateway) {
	t.Helper()
	g := &gateway{}
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v2/whip/sfu-broadcaster", func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		g.mu.Lock()
		g.offers = append(g.offers, string(body))
		g.auth = append(g.auth, r.Header.Get("Authorization"))
		g.mu.Unlock()
		if r.Header.Get("Content-Type") != contentTypeSDP {
			w.WriteHeader(http.StatusUnsupportedMediaType)
			return
		}
		w.Header().Set("Location", "/api/v2/whip/sfu-broadcaster/chan-42")
		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, "v=0 answer")
	})
	mux.HandleFunc("POST /whep/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Location", "/whep/"+r.PathValue("id")+"/session-1")
		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, "v=0 play-answer")
	})
	mux.HandleFunc("DELETE /", func(w http.ResponseWriter, r *http.Request) {
		g.mu.Lock()
		g.deleted = append(g.deleted, r.URL.Path)
		g.mu.Unlock()
		w.WriteHeader(http.StatusOK)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, g
}

func TestWHIPClient_StartStop(t *testing.T) {
	srv, g := newGateway(t)
	var conn *fakeConn
	w := &WHIPClient{
		Endpoint: srv.URL + "/api/v2/whip/sfu-broadcaster",
		AuthKey:  "secret",
		NewConn:  fakeFactory(&conn),
	}
	assert.Empty(t, w.ChannelID())

	require.NoError(t, w.Start(context.Background()))
	assert.Equal(t, domain.ChannelID("chan-42"), w.ChannelID())
	assert.Equal(t, "v=0 answer", conn.answer)
	require.Len(t, conn.tracks, 1)
	assert.NotNil(t, w.Video())
	assert.Equal(t, []string{"v=0 offer"}, g.offers)
	assert.Equal(t, []string{"Bearer secret"}, g.auth)

	assert.ErrorIs(t, w.Start(context.Background()), ErrAlreadyStarted)

	require.NoError(t, w.Stop(context.Background()))
	assert.True(t, conn.isClosed())
	assert.Equal(t, []string{"/api/v2/whip/sfu-broadcaster/chan-42"}, g.deleted)
	assert.ErrorIs(t, w.Stop(context.Background()), ErrNotStarted)
}

func TestWHIPClient_GatewayErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/nolocation" {
			w.WriteHeader(http.StatusCreated)
			return
		}
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	var conn *fakeConn
	w := &WHIPClient{Endpoint: srv.URL + "/whip", NewConn: fakeFactory(&conn)}
	assert.ErrorIs(t, w.Start(context.Background()), ErrUnexpectedStatus)
	assert.True(t, conn.isClosed())

	w = &WHIPClient{Endpoint: srv.URL + "/nolocation", NewConn: fakeFactory(&conn)}
	assert.ErrorIs(t, w.Start(context.Background()), ErrNoLocation)
}

func TestWHEPPlayer_StartStop(t *testing.T) {
	srv, g := newGateway(t)
	var conn *fakeConn
	p := &WHEPPlayer{Gateway: srv.URL + "/", Channel: "chan-7", NewConn: fakeFactory(&conn)}

	assert.Equal(t, srv.URL+"/whep/chan-7", p.PlaybackURL())
	require.NoError(t, p.Start(context.Background()))
	assert.Equal(t, "whep:chan-7", conn.label)
	assert.Equal(t, []webrtc.RTPCodecType{webrtc.RTPCodecTypeVideo, webrtc.RTPCodecTypeAudio}, conn.receivers)
	assert.Equal(t, "v=0 play-answer", conn.answer)
	assert.Equal(t, domain.ChannelID("chan-7"), p.ChannelID())

	require.NoError(t, p.Stop(context.Background()))
	assert.Equal(t, []string{"/whep/chan-7/session-1"}, g.deleted)
}

func TestWHEPPlayer_StopDoesNotReportEnded(t *testing.T) {
	srv, _ := newGateway(t)
	var conn *fakeConn
	ended := 0
	p := &WHEPPlayer{Gateway: srv.URL, Channel: "chan-7", NewConn: fakeFactory(&conn), OnEnded: func() { ended++ }}

	require.NoError(t, p.Start(context.Background()))
	require.NoError(t, p.Stop(context.Background()))
	assert.True(t, conn.isClosed())
	assert.Zero(t, ended)
}

func TestWHEPPlayer_RemoteDropEndsPlayback(t *testing.T) {
	srv, g := newGateway(t)
	var conn *fakeConn
	ended := 0
	p := &WHEPPlayer{Gateway: srv.URL, Channel: "chan-7", NewConn: fakeFactory(&conn), OnEnded: func() { ended++ }}

	require.NoError(t, p.Start(context.Background()))
	conn.drop()

	assert.Equal(t, 1, ended)
	assert.Equal(t, []string{"/whep/chan-7/session-1"}, g.deleted)
	assert.ErrorIs(t, p.Stop(context.Background()), ErrNotStarted)

	// the player can be started again
	require.NoError(t, p.Start(context.Background()))
}

func TestWHEPPlayer_RequiresChannel(t *testing.T) {
	p := &WHEPPlayer{Gateway: "http://example"}
	assert.ErrorIs(t, p.Start(context.Background()), ErrMissingChannel)
}

func TestChannelIDFromResource(t *testing.T) {
	tests := []struct {
		in      string
		want    domain.ChannelID
		wantErr bool
	}{
		{"https://gw.example/api/v2/whip/sfu-broadcaster/abc123", "abc123", false},
		{"https://gw.example/whip/abc123/", "abc123", false},
		{"/relative/xyz", "xyz", false},
		{"https://gw.example/", "", true},
		{"https://gw.example", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := channelIDFromResource(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseChannelList(t *testing.T) {
	const gw = "https://gw.example"
	tests := []struct {
		name string
		body string
		want []Channel
	}{
		{
			name: "bare array with mixed id keys",
			body: `[{"channelId":"a"},{"id":"b"},{"streamId":"c"},{"channel":"d"},{"nothing":"x"}]`,
			want: []Channel{
				{ID: "a", PlaybackURL: gw + "/whep/a"},
				{ID: "b", PlaybackURL: gw + "/whep/b"},
				{ID: "c", PlaybackURL: gw + "/whep/c"},
				{ID: "d", PlaybackURL: gw + "/whep/d"},
			},
		},
		{
			name: "streams wrapper with resource",
			body: `{"streams":[{"id":"a","resource":"/whep/channel/a"}]}`,
			want: []Channel{{ID: "a", PlaybackURL: gw + "/whep/channel/a"}},
		},
		{
			name: "channels wrapper with url",
			body: `{"channels":[{"channelId":"a","url":"https://other/a"}]}`,
			want: []Channel{{ID: "a", PlaybackURL: "https://other/a"}},
		},
		{
			name: "unknown object",
			body: `{"foo":1}`,
			want: []Channel{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseChannelList(gw, []byte(tt.body))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := parseChannelList(gw, []byte("not json"))
	assert.Error(t, err)
}

func TestDirectory_List(t *testing.T) {
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		if r.URL.Path != "/whep/channel" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = io.WriteString(w, `[{"channelId":"a"}]`)
	}))
	defer srv.Close()

	d := &Directory{Gateway: srv.URL, AuthKey: "k"}
	got, err := d.List(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, domain.ChannelID("a"), got[0].ID)
	assert.Equal(t, "Bearer k", auth)

	d = &Directory{Gateway: srv.URL + "/missing"}
	_, err = d.List(context.Background())
	assert.ErrorIs(t, err, ErrUnexpectedStatus)
}
