package integrity

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"strings"
	"sync"

	mimc "github.com/consensys/gnark-crypto/hash"
	"github.com/jinzhu/gorm"
	"github.com/providenetwork/merkletree"

	"github.com/1MGAMINGcompany/one-million-spark-sub008/common"
)

// Hash strategies for the move-log commitment
const (
	// HashStrategySHA256 is the default strategy for off-chain verification
	HashStrategySHA256 = "sha256"

	// HashStrategyMiMC produces roots that are cheap to verify on-chain
	HashStrategyMiMC = "mimc"
)

// Tree is a durable merkle tree over a room's ordered move log. Its root is
// the committed state hash clients compare their replayed state against; a
// divergence is a hash conflict and is resolved by full resync, never by
// incremental patching.
type Tree struct {
	db     *gorm.DB
	hash   func() hash.Hash
	roomID string
	mutex  sync.Mutex
	tree   *merkletree.MerkleTree
	values []merkletree.Content
}

// HashFactory resolves the configured hash strategy to its constructor
func HashFactory(strategy *string) func() hash.Hash {
	if strategy == nil {
		return sha256.New
	}

	switch strings.ToLower(*strategy) {
	case HashStrategySHA256:
		return sha256.New
	case HashStrategyMiMC:
		return func() hash.Hash {
			return mimc.MIMC_BN254.New("seed")
		}
	default:
		common.Log.Warningf("failed to resolve hash strategy; unknown or unsupported strategy: %s", *strategy)
	}

	return nil
}

// LoadTree loads the integrity tree for a room, replaying persisted move
// hashes in insertion order and enabling persistence with the given db
func LoadTree(db *gorm.DB, roomID string, strategy *string) (*Tree, error) {
	h := HashFactory(strategy)
	if h == nil {
		return nil, fmt.Errorf("failed to initialize integrity tree for room %s; no hash strategy", roomID)
	}

	instance := &Tree{
		db:     db,
		hash:   h,
		roomID: roomID,
		values: make([]merkletree.Content, 0),
	}

	rows, err := db.Raw("SELECT value FROM move_hashes WHERE room_id = ? ORDER BY id", roomID).Rows()
	if err != nil {
		return nil, fmt.Errorf("failed to resolve integrity tree for room %s; %s", roomID, err.Error())
	}
	defer rows.Close()

	for rows.Next() {
		var value string
		err = rows.Scan(&value)
		if err != nil {
			return nil, fmt.Errorf("failed to scan the store for move hashes; %s", err.Error())
		}
		instance.values = append(instance.values, &moveContent{
			hash:  h(),
			value: []byte(value),
		})
	}

	if len(instance.values) > 0 {
		tree, err := merkletree.NewTreeWithHashStrategy(instance.values, h)
		if err != nil {
			return nil, fmt.Errorf("failed to rebuild integrity tree for room %s; %s", roomID, err.Error())
		}
		instance.tree = tree
	}

	return instance, nil
}

// Append hashes the canonical move bytes into the tree, persists the entry
// and returns the recalculated root
func (t *Tree) Append(canonicalMove []byte) (*string, error) {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	content := &moveContent{
		hash:  t.hash(),
		value: canonicalMove,
	}
	t.values = append(t.values, content)

	if t.tree == nil {
		tree, err := merkletree.NewTreeWithHashStrategy(t.values, t.hash)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize integrity tree for room %s; %s", t.roomID, err.Error())
		}
		t.tree = tree
	} else {
		err := t.tree.RebuildTreeWith(t.values)
		if err != nil {
			return nil, fmt.Errorf("failed to rebuild integrity tree for room %s; %s", t.roomID, err.Error())
		}
	}

	result := t.db.Exec("INSERT INTO move_hashes (room_id, value) VALUES (?, ?)", t.roomID, string(canonicalMove))
	if result.RowsAffected == 0 {
		return nil, fmt.Errorf("failed to persist move within integrity tree for room %s", t.roomID)
	}

	root := hex.EncodeToString(t.tree.MerkleRoot())
	return &root, nil
}

// Root returns the current committed state hash, or nil for an empty log
func (t *Tree) Root() *string {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	if t.tree == nil || len(t.tree.MerkleRoot()) == 0 {
		return nil
	}
	return common.StringOrNil(hex.EncodeToString(t.tree.MerkleRoot()))
}

// Length returns the count of moves committed to the tree
func (t *Tree) Length() int {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	return len(t.values)
}

// Verify recomputes the tree and confirms the committed root is consistent
func (t *Tree) Verify() (bool, error) {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	if t.tree == nil {
		return true, nil
	}
	return t.tree.VerifyTree()
}
