package rules

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/1MGAMINGcompany/one-million-spark-sub008/common"
	"github.com/1MGAMINGcompany/one-million-spark-sub008/session"
)

// DescriptorSource resolves the room's current immutable rule descriptor;
// the room owns it, the client only reads it.
type DescriptorSource interface {
	Descriptor(ctx context.Context, roomID string) (*Descriptor, error)
}

// Verifier submits a signed acceptance for independent verification and, on
// success, returns the issued bearer session.
type Verifier interface {
	VerifyAcceptance(ctx context.Context, acceptance *Acceptance, descriptor *Descriptor) (*session.Info, error)
}

// Acceptor runs the client side of the rules acceptance flow. At most one
// flow is in flight per room; concurrent callers share the pending result
// instead of triggering a second signature prompt.
type Acceptor struct {
	signer   Signer
	source   DescriptorSource
	verifier Verifier
	store    *session.Store
	flights  singleflight.Group
}

// NewAcceptor initializes an acceptor for the given identity and collaborators
func NewAcceptor(signer Signer, source DescriptorSource, verifier Verifier, store *session.Store) *Acceptor {
	return &Acceptor{
		signer:   signer,
		source:   source,
		verifier: verifier,
		store:    store,
	}
}

// AcceptAndGetSession returns a valid session for the room, reusing a stored
// one when the validity invariant holds and otherwise requesting a fresh
// signature from the player's identity key. A declined signature resolves to
// (nil, common.ErrUserRejected) with no side effects.
func (a *Acceptor) AcceptAndGetSession(ctx context.Context, roomID string) (*session.Info, error) {
	result, err, _ := a.flights.Do(roomID, func() (interface{}, error) {
		return a.accept(ctx, roomID)
	})
	if err != nil {
		return nil, err
	}
	if result == nil {
		return nil, nil
	}
	return result.(*session.Info), nil
}

func (a *Acceptor) accept(ctx context.Context, roomID string) (*session.Info, error) {
	descriptor, err := a.source.Descriptor(ctx, roomID)
	if err != nil {
		common.Log.Warningf("failed to resolve rules descriptor for room %s; %s", roomID, err.Error())
		return nil, fmt.Errorf("%w; failed to resolve rules descriptor for room %s", common.ErrNetworkFailure, roomID)
	}

	rulesHash := descriptor.Hash()

	stored, err := a.store.ValidSession(roomID, rulesHash)
	if err != nil {
		return nil, err
	}
	if stored != nil {
		return stored, nil
	}

	address := a.signer.Address()
	digest := SigningDigest(roomID, address, rulesHash)

	signature, err := a.signer.Sign(ctx, digest)
	if err != nil {
		if errors.Is(err, common.ErrUserRejected) {
			common.Log.Debugf("player %s declined rules acceptance for room %s", address, roomID)
			return nil, common.ErrUserRejected
		}
		return nil, fmt.Errorf("failed to sign rules acceptance for room %s; %s", roomID, err.Error())
	}

	timestamp := time.Now()
	acceptance := &Acceptance{
		RoomID:        common.StringOrNil(roomID),
		PlayerAddress: common.StringOrNil(address),
		RulesHash:     common.StringOrNil(rulesHash),
		Signature:     common.StringOrNil(signature),
		PublicKey:     common.StringOrNil(a.signer.PublicKey()),
		Timestamp:     &timestamp,
	}

	issued, err := a.verifier.VerifyAcceptance(ctx, acceptance, descriptor)
	if err != nil {
		common.Log.Warningf("rules acceptance verification failed for room %s; %s", roomID, err.Error())
		return nil, err
	}

	err = a.store.SetSession(issued)
	if err != nil {
		common.Log.Warningf("failed to persist issued session for room %s; %s", roomID, err.Error())
	}

	return issued, nil
}
