package turn

import (
	"fmt"
	"time"

	"github.com/jinzhu/gorm"
	uuid "github.com/kthomas/go.uuid"
	provide "github.com/provideplatform/provide-go/api"

	"github.com/1MGAMINGcompany/one-million-spark-sub008/common"
)

// Record is the server's authoritative view of the active turn; the client
// timer is only an optimistic mirror of this
type Record struct {
	provide.Model

	RoomID          *string    `sql:"not null" json:"room_id"`
	ActiveWallet    *string    `sql:"not null" json:"active_wallet"`
	TurnTimeSeconds *int       `sql:"not null" json:"turn_time_seconds"`
	StartedAt       *time.Time `sql:"not null" json:"started_at"`
	ForfeitedAt     *time.Time `json:"forfeited_at,omitempty"`
}

// TableName returns the turn records table name
func (r *Record) TableName() string {
	return "turns"
}

// CurrentTurn resolves the active turn record for the room
func CurrentTurn(db *gorm.DB, roomID string) *Record {
	record := &Record{}
	db.Where("room_id = ?", roomID).Order("started_at DESC").First(&record)
	if record.ID == uuid.Nil {
		return nil
	}
	return record
}

// Begin starts a fresh authoritative turn for the given wallet
func Begin(db *gorm.DB, roomID, activeWallet string, turnTimeSeconds int) (*Record, error) {
	now := time.Now()
	record := &Record{
		RoomID:          common.StringOrNil(roomID),
		ActiveWallet:    common.StringOrNil(activeWallet),
		TurnTimeSeconds: &turnTimeSeconds,
		StartedAt:       &now,
	}

	result := db.Create(&record)
	if len(result.GetErrors()) > 0 {
		return nil, fmt.Errorf("failed to begin turn for room %s; %s", roomID, result.GetErrors()[0].Error())
	}
	return record, nil
}

// ValidateForfeit re-validates an optimistic client forfeit request against
// the server's own record of turn-start time; the client countdown is never
// the final ruling
func (r *Record) ValidateForfeit(now time.Time) error {
	if r.TurnTimeSeconds == nil || *r.TurnTimeSeconds <= 0 {
		return fmt.Errorf("turn for room %s is untimed; forfeit rejected", *r.RoomID)
	}
	if r.ForfeitedAt != nil {
		return fmt.Errorf("turn for room %s already forfeited", *r.RoomID)
	}

	deadline := r.StartedAt.Add(time.Second * time.Duration(*r.TurnTimeSeconds))
	if now.Before(deadline) {
		return fmt.Errorf("turn budget for room %s has not lapsed; %s remaining", *r.RoomID, deadline.Sub(now))
	}
	return nil
}

// Forfeit marks the turn forfeited after validation has passed
func (r *Record) Forfeit(db *gorm.DB, now time.Time) error {
	err := r.ValidateForfeit(now)
	if err != nil {
		return err
	}

	r.ForfeitedAt = &now
	result := db.Save(&r)
	if len(result.GetErrors()) > 0 {
		return fmt.Errorf("failed to persist forfeit for room %s; %s", *r.RoomID, result.GetErrors()[0].Error())
	}

	common.Log.Debugf("turn forfeited in room %s by lapsed budget of %d seconds", *r.RoomID, *r.TurnTimeSeconds)
	return nil
}
