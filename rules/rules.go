package rules

import (
	"fmt"
	"time"

	provide "github.com/provideplatform/provide-go/api"

	"github.com/1MGAMINGcompany/one-million-spark-sub008/common"
)

// Match modes
const (
	ModeCasual = "casual"
	ModeRanked = "ranked"
)

// Descriptor is the immutable rule set a room is created with. Its canonical
// byte encoding is what both sides hash, so the field order and separators
// here are part of the wire contract and must never change.
type Descriptor struct {
	RoomID          string `json:"room_id"`
	GameType        string `json:"game_type"`
	MaxPlayers      int    `json:"max_players"`
	StakeAmount     uint64 `json:"stake_amount"`
	Mode            string `json:"mode"`
	TurnTimeSeconds int    `json:"turn_time_seconds"`
}

// CanonicalBytes returns the deterministic byte encoding of the descriptor
func (d *Descriptor) CanonicalBytes() []byte {
	return []byte(fmt.Sprintf(
		"%s|%s|%d|%d|%s|%d",
		d.RoomID,
		d.GameType,
		d.MaxPlayers,
		d.StakeAmount,
		d.Mode,
		d.TurnTimeSeconds,
	))
}

// Hash returns the hex sha256 hash of the canonical descriptor encoding
func (d *Descriptor) Hash() string {
	return common.SHA256Bytes(d.CanonicalBytes())
}

// Validate returns nil when the descriptor is well-formed
func (d *Descriptor) Validate() error {
	if d.RoomID == "" {
		return fmt.Errorf("room id required")
	}
	if d.GameType == "" {
		return fmt.Errorf("game type required")
	}
	if d.MaxPlayers < 2 {
		return fmt.Errorf("max players must be at least 2")
	}
	if d.Mode != ModeCasual && d.Mode != ModeRanked {
		return fmt.Errorf("invalid mode: %s", d.Mode)
	}
	return nil
}

// Acceptance model; one per (room, player), superseded only by a fresh signature
type Acceptance struct {
	provide.Model

	RoomID        *string    `sql:"not null" json:"room_id"`
	PlayerAddress *string    `sql:"not null" json:"player_address"`
	RulesHash     *string    `sql:"not null" json:"rules_hash"`
	Signature     *string    `sql:"not null" json:"signature"`
	PublicKey     *string    `sql:"not null" json:"public_key"`
	Timestamp     *time.Time `sql:"not null" json:"timestamp"`
}

// TableName returns the acceptances table name
func (a *Acceptance) TableName() string {
	return "acceptances"
}

// SigningDigest returns the bytes the player's identity key signs: the room,
// the claimed address and the rules hash, canonically joined. Binding the
// address into the digest prevents replaying another player's acceptance.
func SigningDigest(roomID, playerAddress, rulesHash string) []byte {
	return []byte(fmt.Sprintf("%s|%s|%s", roomID, playerAddress, rulesHash))
}

func (a *Acceptance) validate() bool {
	a.Errors = make([]*provide.Error, 0)

	if a.RoomID == nil {
		a.Errors = append(a.Errors, &provide.Error{
			Message: common.StringOrNil("room id required"),
		})
	}
	if a.PlayerAddress == nil {
		a.Errors = append(a.Errors, &provide.Error{
			Message: common.StringOrNil("player address required"),
		})
	}
	if a.RulesHash == nil {
		a.Errors = append(a.Errors, &provide.Error{
			Message: common.StringOrNil("rules hash required"),
		})
	}
	if a.Signature == nil {
		a.Errors = append(a.Errors, &provide.Error{
			Message: common.StringOrNil("signature required"),
		})
	}
	if a.PublicKey == nil {
		a.Errors = append(a.Errors, &provide.Error{
			Message: common.StringOrNil("public key required"),
		})
	}

	return len(a.Errors) == 0
}
