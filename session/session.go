package session

import (
	"encoding/hex"
	"time"

	provide "github.com/provideplatform/provide-go/api"

	"github.com/1MGAMINGcompany/one-million-spark-sub008/common"
)

// Info is the client-side view of an issued match session: an opaque bearer
// token bound to a room and to the hash of the rules the player signed.
type Info struct {
	Token     string    `json:"session_token"`
	ExpiresAt time.Time `json:"expires_at"`
	RoomID    string    `json:"room_id"`
	RulesHash string    `json:"rules_hash"`
}

// Valid returns true iff the session has not lapsed and its rules binding
// still matches the room's current descriptor hash. A server-side rules change
// invalidates the session the instant the recomputed hash diverges.
func (i *Info) Valid(now time.Time, currentRulesHash string) bool {
	if i == nil || i.Token == "" {
		return false
	}
	if !now.Before(i.ExpiresAt) {
		return false
	}
	return i.RulesHash == currentRulesHash
}

// Record is the server-side session model; possession of the token grants
// access within the expiry window, nothing else is inferred from it.
type Record struct {
	provide.Model

	RoomID        *string    `sql:"not null" json:"room_id"`
	PlayerAddress *string    `sql:"not null" json:"player_address"`
	RulesHash     *string    `sql:"not null" json:"rules_hash"`
	Token         *string    `sql:"not null" json:"session_token"`
	ExpiresAt     *time.Time `sql:"not null" json:"expires_at"`
}

// TableName returns the session records table name
func (r *Record) TableName() string {
	return "sessions"
}

// Expired returns true if the record's validity window has lapsed
func (r *Record) Expired(now time.Time) bool {
	return r.ExpiresAt == nil || !now.Before(*r.ExpiresAt)
}

// IssueToken mints an opaque bearer credential for the record
func (r *Record) IssueToken(ttl time.Duration) error {
	buf, err := common.RandomBytes(32)
	if err != nil {
		return err
	}
	expiry := time.Now().Add(ttl)
	r.Token = common.StringOrNil(hex.EncodeToString(buf))
	r.ExpiresAt = &expiry
	return nil
}

// AsInfo converts the server record to its client representation
func (r *Record) AsInfo() *Info {
	info := &Info{}
	if r.RoomID != nil {
		info.RoomID = *r.RoomID
	}
	if r.RulesHash != nil {
		info.RulesHash = *r.RulesHash
	}
	if r.Token != nil {
		info.Token = *r.Token
	}
	if r.ExpiresAt != nil {
		info.ExpiresAt = *r.ExpiresAt
	}
	return info
}
