package room

import (
	"fmt"

	"github.com/jinzhu/gorm"
	uuid "github.com/kthomas/go.uuid"
	provide "github.com/provideplatform/provide-go/api"

	"github.com/1MGAMINGcompany/one-million-spark-sub008/common"
	"github.com/1MGAMINGcompany/one-million-spark-sub008/rules"
	"github.com/1MGAMINGcompany/one-million-spark-sub008/seed"
)

// Room binds an immutable rules descriptor at creation; the descriptor is
// owned by the room and read-only to clients thereafter
type Room struct {
	provide.Model

	RoomID          *string `sql:"not null;unique" json:"room_id"`
	GameType        *string `sql:"not null" json:"game_type"`
	MaxPlayers      *int    `sql:"not null" json:"max_players"`
	StakeAmount     *uint64 `sql:"not null" json:"stake_amount"`
	Mode            *string `sql:"not null" json:"mode"`
	TurnTimeSeconds *int    `sql:"not null" json:"turn_time_seconds"`
	RulesHash       *string `sql:"not null" json:"rules_hash"`

	HashStrategy *string `json:"hash_strategy,omitempty"`
}

// TableName returns the rooms table name
func (r *Room) TableName() string {
	return "rooms"
}

// Player registers a wallet as a room participant
type Player struct {
	provide.Model

	RoomID  *string `sql:"not null" json:"room_id"`
	Address *string `sql:"not null" json:"address"`
}

// TableName returns the room players table name
func (p *Player) TableName() string {
	return "room_players"
}

// Descriptor reconstructs the canonical rules descriptor the room was
// created with
func (r *Room) Descriptor() *rules.Descriptor {
	descriptor := &rules.Descriptor{}
	if r.RoomID != nil {
		descriptor.RoomID = *r.RoomID
	}
	if r.GameType != nil {
		descriptor.GameType = *r.GameType
	}
	if r.MaxPlayers != nil {
		descriptor.MaxPlayers = *r.MaxPlayers
	}
	if r.StakeAmount != nil {
		descriptor.StakeAmount = *r.StakeAmount
	}
	if r.Mode != nil {
		descriptor.Mode = *r.Mode
	}
	if r.TurnTimeSeconds != nil {
		descriptor.TurnTimeSeconds = *r.TurnTimeSeconds
	}
	return descriptor
}

// Resolve loads a room by its public room id
func Resolve(db *gorm.DB, roomID string) *Room {
	room := &Room{}
	db.Where("room_id = ?", roomID).Find(&room)
	if room.ID == uuid.Nil {
		return nil
	}
	return room
}

// Create persists the room, committing the descriptor hash it was created with
func (r *Room) Create(db *gorm.DB) bool {
	if !r.validate() {
		return false
	}

	descriptor := r.Descriptor()
	r.RulesHash = common.StringOrNil(descriptor.Hash())

	if db.NewRecord(r) {
		result := db.Create(&r)
		rowsAffected := result.RowsAffected
		errors := result.GetErrors()
		if len(errors) > 0 {
			for _, err := range errors {
				r.Errors = append(r.Errors, &provide.Error{
					Message: common.StringOrNil(err.Error()),
				})
			}
		}
		if !db.NewRecord(r) {
			success := rowsAffected > 0
			if success {
				common.Log.Debugf("created room %s; rules hash: %s", *r.RoomID, *r.RulesHash)
			}
			return success
		}
	}

	return false
}

// Join registers a player; the seed round opens once the room is full so
// every expected participant is known before any commitment is accepted
func (r *Room) Join(db *gorm.DB, address string) error {
	existing := 0
	db.Model(&Player{}).Where("room_id = ? AND address = ?", *r.RoomID, address).Count(&existing)
	if existing > 0 {
		return fmt.Errorf("address %s already joined room %s", address, *r.RoomID)
	}

	count := 0
	db.Model(&Player{}).Where("room_id = ?", *r.RoomID).Count(&count)
	if r.MaxPlayers != nil && count >= *r.MaxPlayers {
		return fmt.Errorf("room %s is full", *r.RoomID)
	}

	player := &Player{
		RoomID:  r.RoomID,
		Address: common.StringOrNil(address),
	}
	result := db.Create(&player)
	if len(result.GetErrors()) > 0 {
		return fmt.Errorf("failed to join room %s; %s", *r.RoomID, result.GetErrors()[0].Error())
	}

	count++
	if r.MaxPlayers != nil && count == *r.MaxPlayers {
		addresses := make([]string, 0, count)
		players := make([]*Player, 0)
		db.Where("room_id = ?", *r.RoomID).Find(&players)
		for _, p := range players {
			addresses = append(addresses, *p.Address)
		}

		_, err := seed.OpenRound(db, *r.RoomID, addresses)
		if err != nil {
			return fmt.Errorf("failed to open seed round for room %s; %s", *r.RoomID, err.Error())
		}
	}

	return nil
}

func (r *Room) validate() bool {
	r.Errors = make([]*provide.Error, 0)

	err := r.Descriptor().Validate()
	if err != nil {
		r.Errors = append(r.Errors, &provide.Error{
			Message: common.StringOrNil(err.Error()),
		})
	}

	return len(r.Errors) == 0
}
