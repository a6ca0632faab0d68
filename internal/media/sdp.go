package media

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"

	"github.com/dkeye/OnAir/internal/domain"
)

const contentTypeSDP = "application/sdp"

type exchangeResult struct {
	Answer   string
	Resource string
}

// exchangeSDP posts an offer and returns the answer together with the
// absolute resource URL from the Location header.
func exchangeSDP(ctx context.Context, client *http.Client, endpoint, authKey, offer string) (exchangeResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(offer))
	if err != nil {
		return exchangeResult{}, err
	}
	req.Header.Set("Content-Type", contentTypeSDP)
	setAuth(req, authKey)

	resp, err := client.Do(req)
	if err != nil {
		return exchangeResult{}, fmt.Errorf("post offer: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return exchangeResult{}, fmt.Errorf("read answer: %w", err)
	}
	if resp.StatusCode != http.StatusCreated {
		return exchangeResult{}, fmt.Errorf("%w: %d", ErrUnexpectedStatus, resp.StatusCode)
	}

	loc := resp.Header.Get("Location")
	if loc == "" {
		return exchangeResult{}, ErrNoLocation
	}
	resource, err := resolve(endpoint, loc)
	if err != nil {
		return exchangeResult{}, fmt.Errorf("bad Location %q: %w", loc, err)
	}
	return exchangeResult{Answer: string(body), Resource: resource}, nil
}

// deleteResource ends a WHIP/WHEP session. 404 counts as already gone.
func deleteResource(ctx context.Context, client *http.Client, resource, authKey string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, resource, nil)
	if err != nil {
		return err
	}
	setAuth(req, authKey)
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("delete resource: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	switch resp.StatusCode {
	case http.StatusOK, http.StatusNoContent, http.StatusAccepted, http.StatusNotFound:
		return nil
	default:
		return fmt.Errorf("%w: %d", ErrUnexpectedStatus, resp.StatusCode)
	}
}

// channelIDFromResource takes the last path segment of the resource URL.
func channelIDFromResource(resource string) (domain.ChannelID, error) {
	u, err := url.Parse(resource)
	if err != nil {
		return "", err
	}
	last := path.Base(strings.TrimRight(u.Path, "/"))
	if last == "." || last == "/" || last == "" {
		return "", ErrNoChannelInResource
	}
	return domain.ChannelID(last), nil
}

func resolve(base, ref string) (string, error) {
	b, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	r, err := url.Parse(ref)
	if err != nil {
		return "", err
	}
	return b.ResolveReference(r).String(), nil
}

func setAuth(req *http.Request, key string) {
	if key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
	}
}
