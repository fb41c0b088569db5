package seed

import (
	"encoding/hex"
	"fmt"

	"github.com/1MGAMINGcompany/one-million-spark-sub008/common"
	"github.com/1MGAMINGcompany/one-million-spark-sub008/session"
)

// Client runs one participant's side of the commit-reveal cycle. The secret
// is exclusively owned by its generator until voluntarily revealed; it lives
// only in the injected store and is purged on confirmed consumption.
type Client struct {
	store *session.Store
}

// NewClient initializes a seed participant client over the given store
func NewClient(store *session.Store) *Client {
	return &Client{
		store: store,
	}
}

// EnsureSecret returns the participant's secret for the room, generating and
// persisting a fresh one when none exists yet
func (c *Client) EnsureSecret(roomID string) ([]byte, error) {
	stored, err := c.store.Secret(roomID)
	if err != nil {
		return nil, err
	}
	if stored != nil {
		secret, err := hex.DecodeString(*stored)
		if err != nil {
			return nil, fmt.Errorf("failed to decode stored seed secret for room %s; %s", roomID, err.Error())
		}
		return secret, nil
	}

	secret, err := GenerateSecret()
	if err != nil {
		return nil, err
	}
	err = c.store.SetSecret(roomID, hex.EncodeToString(secret))
	if err != nil {
		return nil, fmt.Errorf("failed to persist seed secret for room %s; %s", roomID, err.Error())
	}
	return secret, nil
}

// Commitment returns the public commitment for the room's stored secret
func (c *Client) Commitment(roomID string) (string, error) {
	secret, err := c.EnsureSecret(roomID)
	if err != nil {
		return "", err
	}
	return Commit(secret), nil
}

// VerifyReveal checks another participant's revealed secret against its
// published commitment; a mismatch is a protocol violation
func VerifyReveal(commitment, secretHex string) error {
	secret, err := hex.DecodeString(secretHex)
	if err != nil {
		return fmt.Errorf("invalid revealed secret hex; %s", err.Error())
	}
	if Commit(secret) != commitment {
		return fmt.Errorf("%w; revealed secret does not match commitment", common.ErrRoundVoid)
	}
	return nil
}

// ConfirmReveal purges the secret once the server has acknowledged the
// reveal, and retains the finalized seed hash for post-hoc verification
func (c *Client) ConfirmReveal(roomID string, finalSeedHash *string) error {
	err := c.store.PurgeSecret(roomID)
	if err != nil {
		return fmt.Errorf("failed to purge consumed seed secret for room %s; %s", roomID, err.Error())
	}
	if finalSeedHash != nil {
		return c.store.SetFinalSeedHash(roomID, *finalSeedHash)
	}
	return nil
}
