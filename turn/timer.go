package turn

import (
	"sync"
	"time"

	"github.com/1MGAMINGcompany/one-million-spark-sub008/common"
)

// Presentation thresholds; they never affect the protocol
const lowTimeThreshold = 30
const criticalThreshold = 10

// Phase of the active turn
type Phase int

const (
	// PhaseWaitingRoll indicates the active player has not rolled yet
	PhaseWaitingRoll Phase = iota

	// PhaseRolled indicates the roll happened and the move is being played out
	PhaseRolled

	// PhaseExpired indicates the turn budget lapsed
	PhaseExpired
)

// Key identifies one timed turn. The timer resets to full duration only when
// this composite key changes; re-evaluation with the same key never restarts
// the countdown.
type Key struct {
	ActiveWallet    string
	TurnTimeSeconds int
}

// Timer mirrors the server-enforced per-turn deadline locally. It drives UX
// and an optimistic forfeit request; the server re-validates the actual
// forfeit against its own record of turn-start time.
type Timer struct {
	mutex sync.Mutex

	key       Key
	remaining int
	phase     Phase

	running bool
	paused  bool
	expired bool

	ticker *time.Ticker
	cancel chan struct{}

	onExpire func(Key)
}

// NewTimer initializes a timer; onExpire fires exactly once per key, on its
// own goroutine so it cannot interleave with the transition that produced it
func NewTimer(onExpire func(Key)) *Timer {
	return &Timer{
		onExpire: onExpire,
	}
}

// Reset configures the timer for the given turn. A call with the current key
// is a no-op; a key change stops any prior tick source, restores the full
// duration and clears the expired latch. TurnTimeSeconds <= 0 means untimed.
func (t *Timer) Reset(activeWallet string, turnTimeSeconds int) {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	key := Key{ActiveWallet: activeWallet, TurnTimeSeconds: turnTimeSeconds}
	if t.running && t.key == key {
		return
	}

	t.stopTicking()

	t.key = key
	t.remaining = turnTimeSeconds
	t.phase = PhaseWaitingRoll
	t.expired = false
	t.paused = false
	t.running = true

	if turnTimeSeconds <= 0 {
		return
	}

	t.startTicking()
}

// Stop idles the timer and cancels its tick source
func (t *Timer) Stop() {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	t.stopTicking()
	t.running = false
	t.paused = false
}

// Pause freezes the remaining time without resetting it
func (t *Timer) Pause() {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	if !t.running || t.paused || t.expired {
		return
	}

	t.stopTicking()
	t.paused = true
}

// Resume continues the countdown from the frozen value
func (t *Timer) Resume() {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	if !t.running || !t.paused || t.expired {
		return
	}

	t.paused = false
	if t.key.TurnTimeSeconds > 0 {
		t.startTicking()
	}
}

// MarkRolled transitions the turn phase once the active player has rolled
func (t *Timer) MarkRolled() {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	if t.running && !t.expired {
		t.phase = PhaseRolled
	}
}

// Remaining returns the seconds left on the current turn
func (t *Timer) Remaining() int {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	return t.remaining
}

// CurrentPhase returns the turn phase
func (t *Timer) CurrentPhase() Phase {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	return t.phase
}

// Expired returns true once the current key's budget has lapsed
func (t *Timer) Expired() bool {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	return t.expired
}

// LowTime returns true in the low-time presentation state
func (t *Timer) LowTime() bool {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	return t.running && !t.expired && t.key.TurnTimeSeconds > 0 && t.remaining <= lowTimeThreshold
}

// Critical returns true in the critical presentation state
func (t *Timer) Critical() bool {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	return t.running && !t.expired && t.key.TurnTimeSeconds > 0 && t.remaining <= criticalThreshold
}

// startTicking spawns a fresh 1 Hz tick source; callers hold the mutex
func (t *Timer) startTicking() {
	ticker := time.NewTicker(time.Second * 1)
	cancel := make(chan struct{})
	t.ticker = ticker
	t.cancel = cancel

	go func() {
		for {
			select {
			case <-ticker.C:
				t.tick(cancel)
			case <-cancel:
				return
			}
		}
	}()
}

// stopTicking deterministically cancels the prior tick source so stale ticks
// can never accumulate or double-fire; callers hold the mutex
func (t *Timer) stopTicking() {
	if t.ticker != nil {
		t.ticker.Stop()
		t.ticker = nil
	}
	if t.cancel != nil {
		close(t.cancel)
		t.cancel = nil
	}
}

// Tick advances the countdown by one second; exposed for deterministic tests,
// driven by the internal ticker in production
func (t *Timer) Tick() {
	t.tick(nil)
}

func (t *Timer) tick(source chan struct{}) {
	t.mutex.Lock()

	// ignore ticks from a source that has since been cancelled
	if source != nil && t.cancel != source {
		t.mutex.Unlock()
		return
	}

	if !t.running || t.paused || t.expired || t.key.TurnTimeSeconds <= 0 {
		t.mutex.Unlock()
		return
	}

	if t.remaining > 0 {
		t.remaining--
	}

	if t.remaining > 0 {
		t.mutex.Unlock()
		return
	}

	t.expired = true
	t.phase = PhaseExpired
	t.stopTicking()
	key := t.key
	callback := t.onExpire
	t.mutex.Unlock()

	common.Log.Debugf("turn budget lapsed for wallet %s after %d seconds", key.ActiveWallet, key.TurnTimeSeconds)

	if callback != nil {
		go callback(key)
	}
}
