package room

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/1MGAMINGcompany/one-million-spark-sub008/common"
	"github.com/1MGAMINGcompany/one-million-spark-sub008/session"
)

const testRulesHash = "5f2c1d8a9b4e7f0312d6c5a8e9b0f1234567890abcdef01234567890abcdef01"

func testRoom() *Room {
	return &Room{
		RoomID:    common.StringOrNil("room-1"),
		RulesHash: common.StringOrNil(testRulesHash),
	}
}

func testSessionInfo() *session.Info {
	return &session.Info{
		Token:     "token-abc",
		ExpiresAt: time.Now().Add(time.Hour),
		RoomID:    "room-1",
		RulesHash: testRulesHash,
	}
}

func sequencedMove(sequence int) *Move {
	payload := "{\"roll\":[3,5]}"
	return &Move{
		RoomID:        common.StringOrNil("room-1"),
		Sequence:      &sequence,
		PlayerAddress: common.StringOrNil("0xalice"),
		Payload:       &payload,
	}
}

func TestJudgeSubmissionAcceptsInSequenceMove(t *testing.T) {
	signal, err := judgeSubmission(testSessionInfo(), time.Now(), testRoom(), sequencedMove(1), 0)
	assert.Equal(t, common.ConflictNone, signal)
	assert.NoError(t, err)

	signal, err = judgeSubmission(testSessionInfo(), time.Now(), testRoom(), sequencedMove(4), 3)
	assert.Equal(t, common.ConflictNone, signal)
	assert.NoError(t, err)
}

func TestJudgeSubmissionRejectsMissingOrLapsedSession(t *testing.T) {
	signal, err := judgeSubmission(nil, time.Now(), testRoom(), sequencedMove(1), 0)
	assert.Equal(t, common.ConflictSessionExpired, signal)
	assert.ErrorIs(t, err, common.ErrSessionExpired)

	lapsed := testSessionInfo()
	lapsed.ExpiresAt = time.Now().Add(-time.Minute)
	signal, err = judgeSubmission(lapsed, time.Now(), testRoom(), sequencedMove(1), 0)
	assert.Equal(t, common.ConflictSessionExpired, signal)
	assert.ErrorIs(t, err, common.ErrSessionExpired)
}

func TestJudgeSubmissionRejectsReboundSession(t *testing.T) {
	// a server-side rules change invalidates the session binding
	rebound := testSessionInfo()
	rebound.RulesHash = "another-hash"
	signal, err := judgeSubmission(rebound, time.Now(), testRoom(), sequencedMove(1), 0)
	assert.Equal(t, common.ConflictSessionExpired, signal)
	assert.ErrorIs(t, err, common.ErrSessionExpired)

	foreign := testSessionInfo()
	foreign.RoomID = "room-2"
	signal, err = judgeSubmission(foreign, time.Now(), testRoom(), sequencedMove(1), 0)
	assert.Equal(t, common.ConflictSessionExpired, signal)
	assert.ErrorIs(t, err, common.ErrSessionExpired)
}

func TestJudgeSubmissionRejectsDivergentSequence(t *testing.T) {
	// a client that raced another submit judges its sequence against a log
	// that has since grown
	signal, err := judgeSubmission(testSessionInfo(), time.Now(), testRoom(), sequencedMove(2), 2)
	assert.Equal(t, common.ConflictOutOfSync, signal)
	assert.ErrorIs(t, err, common.ErrOutOfSync)

	signal, err = judgeSubmission(testSessionInfo(), time.Now(), testRoom(), sequencedMove(5), 1)
	assert.Equal(t, common.ConflictOutOfSync, signal)
	assert.ErrorIs(t, err, common.ErrOutOfSync)

	unsequenced := sequencedMove(1)
	unsequenced.Sequence = nil
	signal, err = judgeSubmission(testSessionInfo(), time.Now(), testRoom(), unsequenced, 0)
	assert.Equal(t, common.ConflictOutOfSync, signal)
	assert.ErrorIs(t, err, common.ErrOutOfSync)
}

func TestMoveCanonicalBytesDeterministic(t *testing.T) {
	first := sequencedMove(1)
	second := sequencedMove(1)
	require.Equal(t, first.CanonicalBytes(), second.CanonicalBytes())

	diverged := sequencedMove(1)
	other := "{\"roll\":[6,1]}"
	diverged.Payload = &other
	assert.NotEqual(t, first.CanonicalBytes(), diverged.CanonicalBytes())
}
