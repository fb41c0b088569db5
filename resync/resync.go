package resync

import (
	"context"
	"fmt"
	"sync"

	"github.com/1MGAMINGcompany/one-million-spark-sub008/common"
	"github.com/1MGAMINGcompany/one-million-spark-sub008/room"
	"github.com/1MGAMINGcompany/one-million-spark-sub008/rules"
	"github.com/1MGAMINGcompany/one-million-spark-sub008/session"
)

// Fetcher retrieves the authoritative session record and the full ordered
// move log for a room
type Fetcher interface {
	FetchSession(ctx context.Context, roomID string) (*session.Info, error)
	FetchMoves(ctx context.Context, roomID string) ([]*room.Move, error)
}

// Engine is the external game engine collaborator; it reconstructs board
// state from a replayed move log and judges legality. This package never does.
type Engine interface {
	Replay(ctx context.Context, roomID string, moves []*room.Move) error
}

// Result is the outcome of one recovery pass. Success reflects the session
// fetch alone; an empty move list is valid for a fresh match. Replayed
// reports whether the snapshot made it through the engine, independently of
// Success.
type Result struct {
	Session  *session.Info `json:"session"`
	Moves    []*room.Move  `json:"moves"`
	Success  bool          `json:"success"`
	Replayed bool          `json:"replayed"`
}

// Resynchronizer recovers from state divergence by replacing local state with
// a full authoritative snapshot and replaying it through the engine; it never
// reconciles divergent partial histories incrementally.
type Resynchronizer struct {
	fetcher  Fetcher
	engine   Engine
	acceptor *rules.Acceptor
	store    *session.Store

	mutex     sync.RWMutex
	resyncing bool
}

// NewResynchronizer initializes a resynchronizer over the given collaborators
func NewResynchronizer(fetcher Fetcher, engine Engine, acceptor *rules.Acceptor, store *session.Store) *Resynchronizer {
	return &Resynchronizer{
		fetcher:  fetcher,
		engine:   engine,
		acceptor: acceptor,
		store:    store,
	}
}

// Resyncing reports whether a recovery pass is in flight; the presentation
// layer renders its spinner from this flag
func (r *Resynchronizer) Resyncing() bool {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	return r.resyncing
}

func (r *Resynchronizer) setResyncing(active bool) {
	r.mutex.Lock()
	r.resyncing = active
	r.mutex.Unlock()
}

// Resync concurrently fetches the authoritative session record and the full
// move log, joining both before returning. A failed move fetch never voids a
// successful session fetch.
func (r *Resynchronizer) Resync(ctx context.Context, roomID string) *Result {
	r.setResyncing(true)
	defer r.setResyncing(false)

	var wg sync.WaitGroup

	var sessionInfo *session.Info
	var sessionErr error

	var moves []*room.Move
	var movesErr error

	wg.Add(2)
	go func() {
		defer wg.Done()
		sessionInfo, sessionErr = r.fetcher.FetchSession(ctx, roomID)
	}()
	go func() {
		defer wg.Done()
		moves, movesErr = r.fetcher.FetchMoves(ctx, roomID)
	}()
	wg.Wait()

	if sessionErr != nil {
		common.Log.Warningf("failed to fetch authoritative session for room %s; %s", roomID, sessionErr.Error())
	}
	if movesErr != nil {
		common.Log.Warningf("failed to fetch move log for room %s; %s", roomID, movesErr.Error())
		moves = make([]*room.Move, 0)
	}

	result := &Result{
		Session: sessionInfo,
		Moves:   moves,
		Success: sessionErr == nil && sessionInfo != nil,
	}

	if !result.Success {
		return result
	}

	err := r.store.SetSession(sessionInfo)
	if err != nil {
		common.Log.Warningf("failed to persist recovered session for room %s; %s", roomID, err.Error())
	}

	if r.engine != nil {
		err = r.engine.Replay(ctx, roomID, result.Moves)
		if err != nil {
			common.Log.Warningf("engine replay failed for room %s; %s", roomID, err.Error())
		}
		result.Replayed = err == nil
	} else {
		result.Replayed = true
	}

	return result
}

// Recover dispatches the recovery path for a conflict signal: an expired
// session re-runs the acceptance flow with a fresh signature, divergence
// signals trigger a full resync
func (r *Resynchronizer) Recover(ctx context.Context, roomID string, signal common.ConflictSignal) (*Result, error) {
	switch signal {
	case common.ConflictNone:
		return nil, nil
	case common.ConflictSessionExpired:
		err := r.store.ClearSession(roomID)
		if err != nil {
			common.Log.Warningf("failed to clear expired session for room %s; %s", roomID, err.Error())
		}
		info, err := r.acceptor.AcceptAndGetSession(ctx, roomID)
		if err != nil {
			return nil, err
		}
		if info == nil {
			return &Result{Success: false}, nil
		}
		return &Result{Session: info, Moves: make([]*room.Move, 0), Success: true}, nil
	case common.ConflictOutOfSync, common.ConflictHashConflict:
		return r.Resync(ctx, roomID), nil
	}

	return nil, fmt.Errorf("unsupported conflict signal: %d", signal)
}
