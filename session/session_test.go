package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testRulesHash = "5f2c1d8a9b4e7f0312d6c5a8e9b0f1234567890abcdef01234567890abcdef01"

func testInfo(expiresAt time.Time) *Info {
	return &Info{
		Token:     "token-abc",
		ExpiresAt: expiresAt,
		RoomID:    "room-1",
		RulesHash: testRulesHash,
	}
}

func TestInfoValidWithinWindow(t *testing.T) {
	now := time.Now()
	info := testInfo(now.Add(time.Hour))
	assert.True(t, info.Valid(now, testRulesHash))
}

func TestInfoInvalidExactlyAtExpiry(t *testing.T) {
	now := time.Now()
	info := testInfo(now)

	// validity is strictly before expiresAt
	assert.False(t, info.Valid(now, testRulesHash))
}

func TestInfoInvalidAfterExpiry(t *testing.T) {
	now := time.Now()
	info := testInfo(now.Add(-time.Second))
	assert.False(t, info.Valid(now, testRulesHash))
}

func TestInfoInvalidatedByRulesChange(t *testing.T) {
	now := time.Now()
	info := testInfo(now.Add(time.Hour))
	assert.False(t, info.Valid(now, "another-hash"))
}

func TestInfoInvalidWhenNilOrTokenless(t *testing.T) {
	var info *Info
	assert.False(t, info.Valid(time.Now(), testRulesHash))

	info = testInfo(time.Now().Add(time.Hour))
	info.Token = ""
	assert.False(t, info.Valid(time.Now(), testRulesHash))
}

func TestStoreSessionLifecycle(t *testing.T) {
	store := NewStore(NewMemoryKV(), "0xplayer")

	info, err := store.Session("room-1")
	require.NoError(t, err)
	assert.Nil(t, info)

	err = store.SetSession(testInfo(time.Now().Add(time.Hour)))
	require.NoError(t, err)

	info, err = store.Session("room-1")
	require.NoError(t, err)
	require.NotNil(t, info)
	assert.Equal(t, "token-abc", info.Token)
	assert.Equal(t, testRulesHash, info.RulesHash)

	err = store.ClearSession("room-1")
	require.NoError(t, err)

	info, err = store.Session("room-1")
	require.NoError(t, err)
	assert.Nil(t, info)
}

func TestStoreSetSessionSkipsLapsedSession(t *testing.T) {
	store := NewStore(NewMemoryKV(), "0xplayer")

	// a non-positive TTL would be rejected by a redis-backed KV; the lapsed
	// session is simply not persisted
	err := store.SetSession(testInfo(time.Now().Add(-time.Second)))
	require.NoError(t, err)

	info, err := store.Session("room-1")
	require.NoError(t, err)
	assert.Nil(t, info)
}

func TestStoreValidSessionFiltersLapsedAndRebound(t *testing.T) {
	store := NewStore(NewMemoryKV(), "0xplayer")

	err := store.SetSession(testInfo(time.Now().Add(-time.Minute)))
	require.NoError(t, err)

	info, err := store.ValidSession("room-1", testRulesHash)
	require.NoError(t, err)
	assert.Nil(t, info)

	err = store.SetSession(testInfo(time.Now().Add(time.Hour)))
	require.NoError(t, err)

	info, err = store.ValidSession("room-1", "changed-hash")
	require.NoError(t, err)
	assert.Nil(t, info)

	info, err = store.ValidSession("room-1", testRulesHash)
	require.NoError(t, err)
	assert.NotNil(t, info)
}

func TestStoreRoomsAreIndependent(t *testing.T) {
	store := NewStore(NewMemoryKV(), "0xplayer")

	first := testInfo(time.Now().Add(time.Hour))
	second := testInfo(time.Now().Add(time.Hour))
	second.RoomID = "room-2"
	second.Token = "token-def"

	require.NoError(t, store.SetSession(first))
	require.NoError(t, store.SetSession(second))
	require.NoError(t, store.ClearSession("room-1"))

	info, err := store.Session("room-2")
	require.NoError(t, err)
	require.NotNil(t, info)
	assert.Equal(t, "token-def", info.Token)
}

func TestStoreSecretLifecycle(t *testing.T) {
	store := NewStore(NewMemoryKV(), "0xplayer")

	secret, err := store.Secret("room-1")
	require.NoError(t, err)
	assert.Nil(t, secret)

	require.NoError(t, store.SetSecret("room-1", "deadbeef"))

	secret, err = store.Secret("room-1")
	require.NoError(t, err)
	require.NotNil(t, secret)
	assert.Equal(t, "deadbeef", *secret)

	require.NoError(t, store.PurgeSecret("room-1"))

	secret, err = store.Secret("room-1")
	require.NoError(t, err)
	assert.Nil(t, secret)
}

func TestStoreFinalSeedHashRetainedAfterPurge(t *testing.T) {
	store := NewStore(NewMemoryKV(), "0xplayer")

	require.NoError(t, store.SetSecret("room-1", "deadbeef"))
	require.NoError(t, store.SetFinalSeedHash("room-1", testRulesHash))
	require.NoError(t, store.PurgeSecret("room-1"))

	finalSeedHash, err := store.FinalSeedHash("room-1")
	require.NoError(t, err)
	require.NotNil(t, finalSeedHash)
	assert.Equal(t, testRulesHash, *finalSeedHash)
}

func TestRecordIssueTokenAndExpiry(t *testing.T) {
	record := &Record{}
	err := record.IssueToken(time.Hour)
	require.NoError(t, err)

	require.NotNil(t, record.Token)
	assert.Len(t, *record.Token, 64)
	require.NotNil(t, record.ExpiresAt)
	assert.False(t, record.Expired(time.Now()))
	assert.True(t, record.Expired(record.ExpiresAt.Add(time.Second)))
	assert.True(t, record.Expired(*record.ExpiresAt))
}
