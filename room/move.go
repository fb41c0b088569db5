package room

import (
	"fmt"
	"time"

	"github.com/jinzhu/gorm"
	provide "github.com/provideplatform/provide-go/api"

	"github.com/1MGAMINGcompany/one-million-spark-sub008/common"
	"github.com/1MGAMINGcompany/one-million-spark-sub008/integrity"
	"github.com/1MGAMINGcompany/one-million-spark-sub008/session"
)

// Move is one ordered entry in a room's authoritative move log. Legality is
// judged by the game engine; this layer only makes submission trustworthy
// and recoverable.
type Move struct {
	provide.Model

	RoomID        *string `sql:"not null" json:"room_id"`
	Sequence      *int    `sql:"not null" json:"sequence"`
	PlayerAddress *string `sql:"not null" json:"player_address"`
	Payload       *string `sql:"not null;type:text" json:"payload"`
	StateHash     *string `json:"state_hash,omitempty"`
}

// TableName returns the moves table name
func (m *Move) TableName() string {
	return "moves"
}

// CanonicalBytes returns the deterministic encoding committed to the
// integrity tree
func (m *Move) CanonicalBytes() []byte {
	return []byte(fmt.Sprintf("%s|%d|%s|%s", *m.RoomID, *m.Sequence, *m.PlayerAddress, *m.Payload))
}

// Moves returns the full ordered move log for the room
func Moves(db *gorm.DB, roomID string) []*Move {
	moves := make([]*Move, 0)
	db.Where("room_id = ?", roomID).Order("sequence ASC").Find(&moves)
	return moves
}

// judgeSubmission validates the bearer session and the claimed log position
// against the committed move count, resolving to the conflict signal the
// client should recover from
func judgeSubmission(info *session.Info, now time.Time, r *Room, move *Move, logLength int) (common.ConflictSignal, error) {
	if info == nil || !info.Valid(now, *r.RulesHash) {
		return common.ConflictSessionExpired, common.ErrSessionExpired
	}
	if info.RoomID != *r.RoomID {
		return common.ConflictSessionExpired, fmt.Errorf("%w; session bound to another room", common.ErrSessionExpired)
	}
	if move.Sequence == nil || *move.Sequence != logLength+1 {
		return common.ConflictOutOfSync, common.ErrOutOfSync
	}
	return common.ConflictNone, nil
}

// SubmitMove validates the bearer session, enforces log ordering and commits
// the move and its integrity tree entry in a single transaction, so a failed
// move insert can never leave an orphan tree entry behind. The returned
// conflict signal tells the client which recovery path applies; session and
// ordering conflicts reject the move, a hash conflict commits it but demands
// a full resync.
func SubmitMove(db *gorm.DB, r *Room, move *Move, bearerToken string, claimedStateHash *string) (common.ConflictSignal, error) {
	info := resolveSession(db, bearerToken)

	tx := db.Begin()
	if tx.Error != nil {
		return common.ConflictNone, fmt.Errorf("failed to begin move submission for room %s; %s", *r.RoomID, tx.Error.Error())
	}

	tree, err := integrity.LoadTree(tx, *r.RoomID, r.HashStrategy)
	if err != nil {
		tx.Rollback()
		return common.ConflictNone, err
	}

	signal, err := judgeSubmission(info, time.Now(), r, move, tree.Length())
	if signal != common.ConflictNone || err != nil {
		tx.Rollback()
		if signal == common.ConflictOutOfSync {
			common.Log.Debugf("move sequence %v diverges from expected %d in room %s", move.Sequence, tree.Length()+1, *r.RoomID)
		}
		return signal, err
	}

	root, err := tree.Append(move.CanonicalBytes())
	if err != nil {
		tx.Rollback()
		return common.ConflictNone, err
	}

	move.StateHash = root
	result := tx.Create(&move)
	if len(result.GetErrors()) > 0 {
		// a concurrent submit claimed this sequence first; rolling back also
		// discards the tree entry appended above
		tx.Rollback()
		common.Log.Debugf("failed to persist move %d for room %s; %s", *move.Sequence, *r.RoomID, result.GetErrors()[0].Error())
		return common.ConflictOutOfSync, common.ErrOutOfSync
	}

	err = tx.Commit().Error
	if err != nil {
		return common.ConflictNone, fmt.Errorf("failed to commit move %d for room %s; %s", *move.Sequence, *r.RoomID, err.Error())
	}

	// a client that replayed to a different hash is diverged even though the
	// move itself was acceptable; it must resync from the committed snapshot
	if claimedStateHash != nil && root != nil && *claimedStateHash != *root {
		common.Log.Warningf("client state hash %s disagrees with committed root %s in room %s", *claimedStateHash, *root, *r.RoomID)
		return common.ConflictHashConflict, common.ErrHashConflict
	}

	return common.ConflictNone, nil
}

// resolveSession resolves the bearer token through the redis cache first and
// falls back to the session records table
func resolveSession(db *gorm.DB, bearerToken string) *session.Info {
	if bearerToken == "" {
		return nil
	}

	if cached := session.CachedInfo(bearerToken); cached != nil {
		return cached
	}

	record := &session.Record{}
	db.Where("token = ?", bearerToken).Find(&record)
	if record.Token == nil {
		return nil
	}
	return record.AsInfo()
}
