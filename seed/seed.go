package seed

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"sort"
	"time"

	"github.com/jinzhu/gorm"
	uuid "github.com/kthomas/go.uuid"
	provide "github.com/provideplatform/provide-go/api"

	"github.com/1MGAMINGcompany/one-million-spark-sub008/common"
)

// SecretSize is the byte length of each participant's seed secret
const SecretSize = 32

// Round statuses
const (
	roundStatusPending   = "pending"
	roundStatusCommitted = "committed"
	roundStatusFinalized = "finalized"
	roundStatusVoid      = "void"
)

// Round is one commit-reveal cycle for a room. Commitments from every
// expected participant must be observed before any reveal is accepted;
// finalization requires every reveal, never a partial set.
type Round struct {
	provide.Model

	RoomID         *string    `sql:"not null" json:"room_id"`
	Status         *string    `sql:"not null;default:'pending'" json:"status"`
	FinalSeedHash  *string    `json:"final_seed_hash,omitempty"`
	RevealDeadline *time.Time `json:"reveal_deadline,omitempty"`

	Participants []*Participant `gorm:"foreignkey:RoundID" json:"participants,omitempty"`
}

// TableName returns the seed rounds table name
func (r *Round) TableName() string {
	return "seed_rounds"
}

// Participant tracks one party's commitment and, later, its revealed secret
type Participant struct {
	provide.Model

	RoundID    *uuid.UUID `sql:"not null;type:uuid" json:"round_id"`
	Address    *string    `sql:"not null" json:"address"`
	Commitment *string    `json:"commitment,omitempty"`
	Secret     *string    `json:"-"`
}

// TableName returns the seed round participants table name
func (p *Participant) TableName() string {
	return "seed_round_participants"
}

// GenerateSecret returns a fresh 32-byte secret from a cryptographically
// secure source
func GenerateSecret() ([]byte, error) {
	secret, err := common.RandomBytes(SecretSize)
	if err != nil {
		return nil, fmt.Errorf("unable to generate seed secret; %s", err.Error())
	}
	return secret, nil
}

// Commit returns the hex sha256 commitment for a secret; publishing it before
// any secret is visible is what prevents a late party from biasing the seed
func Commit(secret []byte) string {
	return common.SHA256Bytes(secret)
}

// Combine computes the final seed hash from every revealed secret, keyed by
// participant address. Secrets are concatenated in lexicographic address
// order, which makes the result independent of reveal arrival order.
func Combine(reveals map[string][]byte) string {
	addresses := make([]string, 0, len(reveals))
	for address := range reveals {
		addresses = append(addresses, address)
	}
	sort.Strings(addresses)

	var buf bytes.Buffer
	for _, address := range addresses {
		buf.Write(reveals[address])
	}
	return common.SHA256Bytes(buf.Bytes())
}

// DeriveSeed reduces a final seed hash to the unsigned 31-bit integer handed
// to the engine's deterministic RNG; masking the sign bit keeps the value
// unambiguous in [0, 2^31-1].
func DeriveSeed(finalSeedHash string) (uint32, error) {
	raw, err := hex.DecodeString(finalSeedHash)
	if err != nil {
		return 0, fmt.Errorf("invalid final seed hash; %s", err.Error())
	}
	if len(raw) < 4 {
		return 0, fmt.Errorf("final seed hash too short: %d bytes", len(raw))
	}
	return binary.BigEndian.Uint32(raw[:4]) & 0x7fffffff, nil
}

// OpenRound creates a pending round for the room with a fixed participant set
func OpenRound(db *gorm.DB, roomID string, addresses []string) (*Round, error) {
	if len(addresses) < 2 {
		return nil, fmt.Errorf("seed round requires at least 2 participants; got %d", len(addresses))
	}

	round := &Round{
		RoomID: common.StringOrNil(roomID),
		Status: common.StringOrNil(roundStatusPending),
	}

	result := db.Create(&round)
	if len(result.GetErrors()) > 0 {
		return nil, fmt.Errorf("failed to open seed round for room %s; %s", roomID, result.GetErrors()[0].Error())
	}

	for _, address := range addresses {
		participant := &Participant{
			RoundID: &round.ID,
			Address: common.StringOrNil(address),
		}
		result = db.Create(&participant)
		if len(result.GetErrors()) > 0 {
			return nil, fmt.Errorf("failed to add participant %s to seed round; %s", address, result.GetErrors()[0].Error())
		}
		round.Participants = append(round.Participants, participant)
	}

	common.Log.Debugf("opened seed round %s for room %s with %d participants", round.ID, roomID, len(addresses))
	return round, nil
}

// CurrentRound resolves the latest seed round for the room
func CurrentRound(db *gorm.DB, roomID string) *Round {
	round := &Round{}
	db.Where("room_id = ?", roomID).Order("created_at DESC").First(&round)
	if round.ID == uuid.Nil {
		return nil
	}
	db.Where("round_id = ?", round.ID).Find(&round.Participants)
	return round
}

// RoundByID resolves a seed round and its participants by round id. Mutating
// paths call this under the round's distributed lock so the loaded snapshot
// reflects every previously persisted commitment and reveal.
func RoundByID(db *gorm.DB, roundID string) *Round {
	round := &Round{}
	db.Where("id = ?", roundID).Find(&round)
	if round.ID == uuid.Nil {
		return nil
	}
	db.Where("round_id = ?", round.ID).Find(&round.Participants)
	return round
}

// lockKey returns the distributed lock key serializing all state transitions
// for the round
func (r *Round) lockKey() string {
	return fmt.Sprintf("match.seed.round.%s.lock", r.ID)
}

// participant resolves the round participant for the given address
func (r *Round) participant(address string) *Participant {
	for _, p := range r.Participants {
		if p.Address != nil && *p.Address == address {
			return p
		}
	}
	return nil
}

// revealOutcome is the in-memory result of applying a reveal to a round
type revealOutcome int

const (
	// revealRecorded indicates the reveal was accepted; more are expected
	revealRecorded revealOutcome = iota

	// revealFinalizes indicates the reveal completed the set
	revealFinalizes

	// revealMismatched indicates the reveal does not hash to its commitment
	revealMismatched
)

// applyCommitment validates and records a commitment in memory, returning the
// mutated participant and whether the commit phase is now closed
func (r *Round) applyCommitment(address, commitment string) (*Participant, bool, error) {
	if r.Status == nil || *r.Status != roundStatusPending {
		return nil, false, fmt.Errorf("%w; commitments are closed for round %s", common.ErrRoundVoid, r.ID)
	}

	participant := r.participant(address)
	if participant == nil {
		return nil, false, fmt.Errorf("address %s is not a participant in round %s", address, r.ID)
	}
	if participant.Commitment != nil {
		return nil, false, fmt.Errorf("participant %s already committed in round %s", address, r.ID)
	}

	participant.Commitment = common.StringOrNil(commitment)
	return participant, r.allCommitted(), nil
}

// applyReveal validates and records a reveal in memory; a mismatch against the
// published commitment surfaces as revealMismatched and common.ErrRoundVoid
func (r *Round) applyReveal(address, secretHex string) (*Participant, revealOutcome, error) {
	if r.Status == nil || *r.Status != roundStatusCommitted {
		return nil, revealRecorded, fmt.Errorf("%w; round %s is not accepting reveals", common.ErrRoundVoid, r.ID)
	}

	participant := r.participant(address)
	if participant == nil {
		return nil, revealRecorded, fmt.Errorf("address %s is not a participant in round %s", address, r.ID)
	}
	if participant.Secret != nil {
		return nil, revealRecorded, fmt.Errorf("participant %s already revealed in round %s", address, r.ID)
	}

	secret, err := hex.DecodeString(secretHex)
	if err != nil {
		return nil, revealRecorded, fmt.Errorf("invalid secret hex from %s; %s", address, err.Error())
	}

	if participant.Commitment == nil || Commit(secret) != *participant.Commitment {
		return participant, revealMismatched, common.ErrRoundVoid
	}

	participant.Secret = common.StringOrNil(secretHex)
	if r.allRevealed() {
		return participant, revealFinalizes, nil
	}
	return participant, revealRecorded, nil
}

// combineReveals computes the final seed hash from the complete reveal set,
// refusing any partial set
func (r *Round) combineReveals() (string, error) {
	reveals := map[string][]byte{}
	for _, p := range r.Participants {
		if p.Secret == nil {
			return "", fmt.Errorf("refusing to finalize round %s from a partial reveal set", r.ID)
		}
		secret, err := hex.DecodeString(*p.Secret)
		if err != nil {
			return "", fmt.Errorf("failed to decode revealed secret for %s; %s", *p.Address, err.Error())
		}
		reveals[*p.Address] = secret
	}
	return Combine(reveals), nil
}

// AddCommitment records a participant's commitment. Once the last expected
// commitment is observed the round transitions to committed and the reveal
// deadline starts running. Callers hold the round's distributed lock and pass
// a round resolved under it.
func (r *Round) AddCommitment(db *gorm.DB, address, commitment string) error {
	participant, phaseClosed, err := r.applyCommitment(address, commitment)
	if err != nil {
		return err
	}

	result := db.Save(&participant)
	if len(result.GetErrors()) > 0 {
		return fmt.Errorf("failed to persist commitment for %s; %s", address, result.GetErrors()[0].Error())
	}

	if phaseClosed {
		deadline := time.Now().Add(common.DefaultRevealTimeout)
		r.RevealDeadline = &deadline
		r.updateStatus(db, roundStatusCommitted)
		dispatchRoundNotification(r, natsSeedRevealOpenSuffix)
		common.Log.Debugf("seed round %s entered reveal phase; deadline %s", r.ID, deadline)
	}

	return nil
}

// AddReveal records a revealed secret. Reveals are only accepted once every
// expected commitment has been observed; a reveal that does not hash to its
// commitment is a protocol violation that voids the whole round. Callers hold
// the round's distributed lock and pass a round resolved under it.
func (r *Round) AddReveal(db *gorm.DB, address, secretHex string) error {
	_, outcome, err := r.applyReveal(address, secretHex)
	if outcome == revealMismatched {
		r.void(db)
		common.Log.Warningf("reveal from %s does not match its commitment; voided round %s", address, r.ID)
		return common.ErrRoundVoid
	}
	if err != nil {
		return err
	}

	participant := r.participant(address)
	result := db.Save(&participant)
	if len(result.GetErrors()) > 0 {
		return fmt.Errorf("failed to persist reveal for %s; %s", address, result.GetErrors()[0].Error())
	}

	if outcome == revealFinalizes {
		return r.finalize(db)
	}

	return nil
}

// finalize commits the final seed hash from the complete reveal set; callers
// reach this only when every expected reveal has been observed
func (r *Round) finalize(db *gorm.DB) error {
	finalSeedHash, err := r.combineReveals()
	if err != nil {
		return err
	}

	r.FinalSeedHash = common.StringOrNil(finalSeedHash)
	r.updateStatus(db, roundStatusFinalized)
	dispatchRoundNotification(r, natsSeedFinalizedSuffix)

	common.Log.Debugf("finalized seed round %s for room %s; final seed hash: %s", r.ID, *r.RoomID, *r.FinalSeedHash)
	return nil
}

// void marks the round unusable; a voided round is never finalized
func (r *Round) void(db *gorm.DB) {
	r.updateStatus(db, roundStatusVoid)
	dispatchRoundNotification(r, natsSeedVoidSuffix)
}

// Expired returns true when the reveal deadline has lapsed without a full
// reveal set
func (r *Round) Expired(now time.Time) bool {
	if r.Status == nil || *r.Status != roundStatusCommitted {
		return false
	}
	return r.RevealDeadline != nil && now.After(*r.RevealDeadline)
}

// Finalized returns true once the final seed hash has been committed
func (r *Round) Finalized() bool {
	return r.Status != nil && *r.Status == roundStatusFinalized
}

// Void returns true when the round has been voided
func (r *Round) Void() bool {
	return r.Status != nil && *r.Status == roundStatusVoid
}

func (r *Round) allCommitted() bool {
	for _, p := range r.Participants {
		if p.Commitment == nil {
			return false
		}
	}
	return len(r.Participants) > 0
}

func (r *Round) allRevealed() bool {
	for _, p := range r.Participants {
		if p.Secret == nil {
			return false
		}
	}
	return len(r.Participants) > 0
}

// updateStatus updates the round status
func (r *Round) updateStatus(db *gorm.DB, status string) {
	r.Status = common.StringOrNil(status)
	result := db.Save(&r)
	errors := result.GetErrors()
	if len(errors) > 0 {
		common.Log.Warningf("failed to update status of seed round %s; %s", r.ID, errors[0].Error())
	}
}
