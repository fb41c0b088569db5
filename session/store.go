package session

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	redisutil "github.com/kthomas/go-redisutil"

	"github.com/1MGAMINGcompany/one-million-spark-sub008/common"
)

// KV is the injectable secure key-value store backing per-room client state:
// sessions, pre-reveal secrets and retained final seed hashes. Secrets follow
// an explicit lifecycle -- written on generation, read on resume, deleted on
// confirmed consumption -- so implementations must support hard deletes.
type KV interface {
	Get(key string) (*string, error)
	Set(key string, val string, ttl *time.Duration) error
	Delete(key string) error
}

// MemoryKV is an in-process KV suitable for tests and single-process clients
type MemoryKV struct {
	mutex sync.RWMutex
	items map[string]string
}

// NewMemoryKV initializes an empty in-memory KV
func NewMemoryKV() *MemoryKV {
	return &MemoryKV{
		items: map[string]string{},
	}
}

// Get retrieves the value stored at key, or nil when absent
func (kv *MemoryKV) Get(key string) (*string, error) {
	kv.mutex.RLock()
	defer kv.mutex.RUnlock()
	if val, ok := kv.items[key]; ok {
		return &val, nil
	}
	return nil, nil
}

// Set stores the value at key; ttl is ignored by the in-memory implementation
func (kv *MemoryKV) Set(key string, val string, ttl *time.Duration) error {
	kv.mutex.Lock()
	defer kv.mutex.Unlock()
	kv.items[key] = val
	return nil
}

// Delete removes the value stored at key
func (kv *MemoryKV) Delete(key string) error {
	kv.mutex.Lock()
	defer kv.mutex.Unlock()
	delete(kv.items, key)
	return nil
}

// Store persists per-room client protocol state. Every room owns independent
// entries; operations on one room never observe another's state.
type Store struct {
	kv            KV
	playerAddress string
}

// NewStore initializes a client state store scoped to the given player
func NewStore(kv KV, playerAddress string) *Store {
	return &Store{
		kv:            kv,
		playerAddress: playerAddress,
	}
}

func (s *Store) sessionKey(roomID string) string {
	return fmt.Sprintf("match.%s.session", roomID)
}

func (s *Store) secretKey(roomID string) string {
	return fmt.Sprintf("match.%s.%s.seed.secret", roomID, s.playerAddress)
}

func (s *Store) finalSeedKey(roomID string) string {
	return fmt.Sprintf("match.%s.seed.final", roomID)
}

// Session retrieves the stored session for the room, or nil when absent
func (s *Store) Session(roomID string) (*Info, error) {
	raw, err := s.kv.Get(s.sessionKey(roomID))
	if err != nil {
		return nil, fmt.Errorf("failed to read stored session for room %s; %s", roomID, err.Error())
	}
	if raw == nil {
		return nil, nil
	}
	info := &Info{}
	err = json.Unmarshal([]byte(*raw), info)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal stored session for room %s; %s", roomID, err.Error())
	}
	return info, nil
}

// SetSession persists the issued session for the room; a session already at
// or past its expiry is not worth storing and a redis-backed KV would reject
// the non-positive TTL
func (s *Store) SetSession(info *Info) error {
	ttl := time.Until(info.ExpiresAt)
	if ttl <= 0 {
		common.Log.Debugf("skipped persisting lapsed session for room %s", info.RoomID)
		return nil
	}
	raw, _ := json.Marshal(info)
	return s.kv.Set(s.sessionKey(info.RoomID), string(raw), &ttl)
}

// ValidSession returns the stored session iff it satisfies the validity
// invariant against the room's current rules hash; otherwise nil.
func (s *Store) ValidSession(roomID, currentRulesHash string) (*Info, error) {
	info, err := s.Session(roomID)
	if err != nil {
		return nil, err
	}
	if info == nil || !info.Valid(time.Now(), currentRulesHash) {
		return nil, nil
	}
	return info, nil
}

// ClearSession drops the stored session for the room
func (s *Store) ClearSession(roomID string) error {
	return s.kv.Delete(s.sessionKey(roomID))
}

// Secret retrieves this player's unrevealed seed secret for the room
func (s *Store) Secret(roomID string) (*string, error) {
	return s.kv.Get(s.secretKey(roomID))
}

// SetSecret persists this player's seed secret until it is revealed
func (s *Store) SetSecret(roomID, secret string) error {
	return s.kv.Set(s.secretKey(roomID), secret, nil)
}

// PurgeSecret deletes the secret after its reveal has been confirmed
func (s *Store) PurgeSecret(roomID string) error {
	return s.kv.Delete(s.secretKey(roomID))
}

// FinalSeedHash retrieves the retained final seed hash for post-hoc verification
func (s *Store) FinalSeedHash(roomID string) (*string, error) {
	return s.kv.Get(s.finalSeedKey(roomID))
}

// SetFinalSeedHash retains the finalized seed hash for the room
func (s *Store) SetFinalSeedHash(roomID, finalSeedHash string) error {
	return s.kv.Set(s.finalSeedKey(roomID), finalSeedHash, nil)
}

// CacheRecord caches the issued session record in redis for fast lookup by
// the move submission path; the cache expires with the session itself.
func CacheRecord(record *Record) {
	if record == nil || record.Token == nil || record.ExpiresAt == nil {
		return
	}
	ttl := time.Until(*record.ExpiresAt)
	if ttl <= 0 {
		return
	}
	raw, _ := json.Marshal(record.AsInfo())
	key := fmt.Sprintf("match.session.%s", *record.Token)
	err := redisutil.Set(key, string(raw), &ttl)
	if err != nil {
		common.Log.Warningf("failed to cache session record for room %s; %s", *record.RoomID, err.Error())
	}
}

// CachedInfo resolves a cached session by bearer token, or nil on miss
func CachedInfo(token string) *Info {
	key := fmt.Sprintf("match.session.%s", token)
	raw, err := redisutil.Get(key)
	if err != nil || raw == nil {
		return nil
	}
	info := &Info{}
	err = json.Unmarshal([]byte(*raw), info)
	if err != nil {
		return nil
	}
	return info
}
