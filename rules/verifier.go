package rules

import (
	"fmt"

	"github.com/jinzhu/gorm"
	provide "github.com/provideplatform/provide-go/api"

	"github.com/1MGAMINGcompany/one-million-spark-sub008/common"
	"github.com/1MGAMINGcompany/one-million-spark-sub008/session"
)

// VerifyAndGrant independently recomputes the rules hash from the submitted
// descriptor, verifies the signature against the claimed address and, on
// success, persists the acceptance and issues a bearer session bound to the
// verified hash. Any mismatch resolves to common.ErrVerificationRejected.
func VerifyAndGrant(db *gorm.DB, acceptance *Acceptance, descriptor *Descriptor) (*session.Record, error) {
	if !acceptance.validate() {
		return nil, common.ErrVerificationRejected
	}
	if err := descriptor.Validate(); err != nil {
		return nil, fmt.Errorf("%w; %s", common.ErrVerificationRejected, err.Error())
	}

	rulesHash := descriptor.Hash()
	if acceptance.RulesHash == nil || *acceptance.RulesHash != rulesHash {
		common.Log.Warningf("acceptance rules hash mismatch for room %s; claimed %s, computed %s", descriptor.RoomID, *acceptance.RulesHash, rulesHash)
		return nil, common.ErrVerificationRejected
	}

	committedHash, err := committedRulesHash(db, descriptor.RoomID)
	if err != nil {
		return nil, err
	}
	if committedHash != nil && *committedHash != rulesHash {
		common.Log.Warningf("submitted descriptor diverges from committed rules for room %s", descriptor.RoomID)
		return nil, common.ErrVerificationRejected
	}

	digest := SigningDigest(descriptor.RoomID, *acceptance.PlayerAddress, rulesHash)
	err = VerifySignature(*acceptance.PublicKey, *acceptance.PlayerAddress, digest, *acceptance.Signature)
	if err != nil {
		common.Log.Warningf("acceptance signature verification failed for room %s; %s", descriptor.RoomID, err.Error())
		return nil, common.ErrVerificationRejected
	}

	if !acceptance.create(db) {
		return nil, fmt.Errorf("failed to persist acceptance for room %s", descriptor.RoomID)
	}

	record := &session.Record{
		RoomID:        acceptance.RoomID,
		PlayerAddress: acceptance.PlayerAddress,
		RulesHash:     common.StringOrNil(rulesHash),
	}
	err = record.IssueToken(common.DefaultSessionTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to issue session token for room %s; %s", descriptor.RoomID, err.Error())
	}

	result := db.Create(&record)
	if len(result.GetErrors()) > 0 {
		return nil, fmt.Errorf("failed to persist session record for room %s; %s", descriptor.RoomID, result.GetErrors()[0].Error())
	}

	session.CacheRecord(record)
	return record, nil
}

// committedRulesHash resolves the room's committed rules hash, or nil when
// the room has not been created yet
func committedRulesHash(db *gorm.DB, roomID string) (*string, error) {
	rows, err := db.Raw("SELECT rules_hash FROM rooms WHERE room_id = ?", roomID).Rows()
	if err != nil {
		return nil, fmt.Errorf("failed to resolve committed rules for room %s; %s", roomID, err.Error())
	}
	defer rows.Close()

	for rows.Next() {
		var hash string
		err = rows.Scan(&hash)
		if err != nil {
			return nil, fmt.Errorf("failed to scan committed rules for room %s; %s", roomID, err.Error())
		}
		return &hash, nil
	}
	return nil, nil
}

// create persists the acceptance, superseding any prior acceptance by the
// same player for the same room
func (a *Acceptance) create(db *gorm.DB) bool {
	if !a.validate() {
		return false
	}

	db.Where("room_id = ? AND player_address = ?", *a.RoomID, *a.PlayerAddress).Delete(&Acceptance{})

	if db.NewRecord(a) {
		result := db.Create(&a)
		rowsAffected := result.RowsAffected
		errors := result.GetErrors()
		if len(errors) > 0 {
			for _, err := range errors {
				a.Errors = append(a.Errors, &provide.Error{
					Message: common.StringOrNil(err.Error()),
				})
			}
		}
		if !db.NewRecord(a) {
			return rowsAffected > 0
		}
	}

	return false
}
