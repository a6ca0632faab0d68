package media

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/dkeye/OnAir/internal/domain"
)

// Channel is one entry of the WHEP gateway channel list.
type Channel struct {
	ID          domain.ChannelID `json:"channelId"`
	PlaybackURL string           `json:"playbackUrl"`
}

// Directory lists live channels from <gateway>/whep/channel.
type Directory struct {
	Gateway string
	AuthKey string
	HTTP    *http.Client
}

func (d *Directory) List(ctx context.Context) ([]Channel, error) {
	client := d.HTTP
	if client == nil {
		client = defaultHTTPClient()
	}
	endpoint := strings.TrimRight(d.Gateway, "/") + "/whep/channel"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	setAuth(req, d.AuthKey)

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("list channels: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: %d", ErrUnexpectedStatus, resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("read channel list: %w", err)
	}
	return parseChannelList(d.Gateway, body)
}

// rawChannel accepts the id under any of the names gateways use.
type rawChannel struct {
	ChannelID string `json:"channelId"`
	ID        string `json:"id"`
	StreamID  string `json:"streamId"`
	Channel   string `json:"channel"`
	Resource  string `json:"resource"`
	URL       string `json:"url"`
	WHEPURL   string `json:"whepUrl"`
}

func (r rawChannel) id() string {
	for _, s := range []string{r.ChannelID, r.ID, r.StreamID, r.Channel} {
		if s != "" {
			return s
		}
	}
	return ""
}

// parseChannelList understands a bare array or an object wrapping it in
// "streams" or "channels". Anything else is an empty list.
func parseChannelList(gateway string, body []byte) ([]Channel, error) {
	var list []rawChannel
	if err := json.Unmarshal(body, &list); err != nil {
		var wrapped struct {
			Streams  []rawChannel `json:"streams"`
			Channels []rawChannel `json:"channels"`
		}
		if err := json.Unmarshal(body, &wrapped); err != nil {
			return nil, fmt.Errorf("decode channel list: %w", err)
		}
		list = wrapped.Streams
		if list == nil {
			list = wrapped.Channels
		}
	}

	out := make([]Channel, 0, len(list))
	for _, r := range list {
		id := r.id()
		if id == "" {
			continue
		}
		ch := Channel{ID: domain.ChannelID(id)}
		switch {
		case r.Resource != "":
			ch.PlaybackURL = strings.TrimRight(gateway, "/") + r.Resource
		case r.URL != "":
			ch.PlaybackURL = r.URL
		case r.WHEPURL != "":
			ch.PlaybackURL = r.WHEPURL
		default:
			ch.PlaybackURL = PlaybackURL(gateway, ch.ID)
		}
		out = append(out, ch)
	}
	return out, nil
}
