package rules

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/1MGAMINGcompany/one-million-spark-sub008/common"
	"github.com/1MGAMINGcompany/one-million-spark-sub008/session"
)

const defaultClientTimeout = time.Second * 30

// Client talks to the match service API; it implements DescriptorSource and
// Verifier for the client-side acceptance flow.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient initializes an API client against the given base URL
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		http: &http.Client{
			Timeout: defaultClientTimeout,
		},
	}
}

// Descriptor fetches the room's current rule descriptor
func (c *Client) Descriptor(ctx context.Context, roomID string) (*Descriptor, error) {
	uri := fmt.Sprintf("%s/api/v1/rooms/%s", c.baseURL, roomID)
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
		return nil, fmt.Errorf("failed to fetch rules descriptor for room %s; status: %d", roomID, resp.StatusCode)
	}

	descriptor := &Descriptor{}
	err = json.NewDecoder(resp.Body).Decode(descriptor)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal rules descriptor for room %s; %s", roomID, err.Error())
	}
	return descriptor, nil
}

type acceptanceRequest struct {
	Acceptance *Acceptance `json:"acceptance"`
	Rules      *Descriptor `json:"rules"`
}

type acceptanceResponse struct {
	Success      bool       `json:"success"`
	SessionToken *string    `json:"session_token,omitempty"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
	RulesHash    *string    `json:"rules_hash,omitempty"`
	Error        *string    `json:"error,omitempty"`
}

// VerifyAcceptance submits the signed acceptance and descriptor; a 422
// resolves to common.ErrVerificationRejected, transport faults to
// common.ErrNetworkFailure.
func (c *Client) VerifyAcceptance(ctx context.Context, acceptance *Acceptance, descriptor *Descriptor) (*session.Info, error) {
	payload, _ := json.Marshal(&acceptanceRequest{
		Acceptance: acceptance,
		Rules:      descriptor,
	})

	uri := fmt.Sprintf("%s/api/v1/rooms/%s/acceptances", c.baseURL, descriptor.RoomID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, uri, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("content-type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w; %s", common.ErrNetworkFailure, err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnprocessableEntity {
		return nil, common.ErrVerificationRejected
	}
	if resp.StatusCode != http.StatusCreated {
		return nil, fmt.Errorf("%w; acceptance submission failed with status: %d", common.ErrNetworkFailure, resp.StatusCode)
	}

	granted := &acceptanceResponse{}
	err = json.NewDecoder(resp.Body).Decode(granted)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal acceptance response; %s", err.Error())
	}
	if !granted.Success || granted.SessionToken == nil || granted.ExpiresAt == nil {
		return nil, common.ErrVerificationRejected
	}

	rulesHash := *acceptance.RulesHash
	if granted.RulesHash != nil {
		rulesHash = *granted.RulesHash
	}

	return &session.Info{
		Token:     *granted.SessionToken,
		ExpiresAt: *granted.ExpiresAt,
		RoomID:    descriptor.RoomID,
		RulesHash: rulesHash,
	}, nil
}
