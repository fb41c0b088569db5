package common

import "errors"

// Protocol error taxonomy. These are the only faults the presentation layer is
// expected to branch on; everything else resolves locally to a nil/false
// result plus a logged reason.
var (
	// ErrUserRejected indicates the player declined the signature prompt; recoverable by retry
	ErrUserRejected = errors.New("user rejected signature request")

	// ErrVerificationRejected indicates a signature/rules mismatch; requires a fresh descriptor and signature
	ErrVerificationRejected = errors.New("acceptance verification rejected")

	// ErrNetworkFailure indicates a transient transport fault; retryable
	ErrNetworkFailure = errors.New("network failure")

	// ErrSessionExpired indicates the bearer session lapsed or its rules binding changed; recoverable via re-acceptance
	ErrSessionExpired = errors.New("session expired")

	// ErrOutOfSync indicates the local move history has fallen behind server truth; recoverable via full resync
	ErrOutOfSync = errors.New("local state out of sync")

	// ErrHashConflict indicates the locally computed state hash disagrees with the committed root; recoverable via full resync
	ErrHashConflict = errors.New("state hash conflict")

	// ErrRevealTimeout indicates a participant failed to reveal in time; the round is voided
	ErrRevealTimeout = errors.New("seed reveal timeout")

	// ErrRoundVoid indicates a fairness violation voided the seed round; not recoverable within the round
	ErrRoundVoid = errors.New("seed round void")
)

// ConflictSignal enumerates the divergence states surfaced to the presentation
// layer; each maps to a specific recovery affordance, never raw error text.
type ConflictSignal int

const (
	// ConflictNone indicates client and server agree
	ConflictNone ConflictSignal = iota

	// ConflictSessionExpired requires a user-initiated re-ready (fresh acceptance)
	ConflictSessionExpired

	// ConflictOutOfSync triggers an automatic full resync
	ConflictOutOfSync

	// ConflictHashConflict is a stronger divergence with the same remedy as out-of-sync
	ConflictHashConflict
)

// String returns the conflict signal name
func (s ConflictSignal) String() string {
	switch s {
	case ConflictNone:
		return "none"
	case ConflictSessionExpired:
		return "session_expired"
	case ConflictOutOfSync:
		return "out_of_sync"
	case ConflictHashConflict:
		return "hash_conflict"
	}
	return "unknown"
}

// SignalFor maps a protocol error to the conflict signal the presentation
// layer should react to; non-divergence errors map to ConflictNone.
func SignalFor(err error) ConflictSignal {
	switch {
	case errors.Is(err, ErrSessionExpired):
		return ConflictSessionExpired
	case errors.Is(err, ErrOutOfSync):
		return ConflictOutOfSync
	case errors.Is(err, ErrHashConflict):
		return ConflictHashConflict
	}
	return ConflictNone
}
