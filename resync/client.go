package resync

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/1MGAMINGcompany/one-million-spark-sub008/common"
	"github.com/1MGAMINGcompany/one-million-spark-sub008/room"
	"github.com/1MGAMINGcompany/one-million-spark-sub008/session"
)

const defaultClientTimeout = time.Second * 30

// Client fetches authoritative room state from the match service API; it
// implements Fetcher
type Client struct {
	baseURL       string
	playerAddress string
	http          *http.Client
}

// NewClient initializes a state fetch client for the given player
func NewClient(baseURL, playerAddress string) *Client {
	return &Client{
		baseURL:       baseURL,
		playerAddress: playerAddress,
		http: &http.Client{
			Timeout: defaultClientTimeout,
		},
	}
}

func (c *Client) fetchState(ctx context.Context, roomID string) (*room.StateResponse, error) {
	uri := fmt.Sprintf("%s/api/v1/rooms/%s/state?player=%s", c.baseURL, roomID, url.QueryEscape(c.playerAddress))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w; %s", common.ErrNetworkFailure, err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to fetch state for room %s; status: %d", roomID, resp.StatusCode)
	}

	state := &room.StateResponse{}
	err = json.NewDecoder(resp.Body).Decode(state)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal state for room %s; %s", roomID, err.Error())
	}
	return state, nil
}

// FetchSession retrieves the authoritative session record for the player
func (c *Client) FetchSession(ctx context.Context, roomID string) (*session.Info, error) {
	state, err := c.fetchState(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if state.Session == nil {
		return nil, nil
	}
	return state.Session.AsInfo(), nil
}

// FetchMoves retrieves the full ordered move log for the room
func (c *Client) FetchMoves(ctx context.Context, roomID string) ([]*room.Move, error) {
	state, err := c.fetchState(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if state.Moves == nil {
		return make([]*room.Move, 0), nil
	}
	return state.Moves, nil
}
