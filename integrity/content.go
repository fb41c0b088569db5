package integrity

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"hash"

	"github.com/providenetwork/merkletree"
)

// moveContent represents one canonical move record and the hash function
// configured for the room's integrity tree
type moveContent struct {
	hash  hash.Hash
	value []byte
}

// CalculateHash returns the hash of the underlying move bytes using the configured hash function
func (mc *moveContent) CalculateHash() ([]byte, error) {
	if mc.hash == nil {
		return nil, errors.New("move content requires configured hash function")
	}
	mc.hash.Reset()
	mc.hash.Write(mc.value)
	return mc.hash.Sum(nil), nil
}

// Equals returns true if the given content matches the underlying move bytes
func (mc *moveContent) Equals(other merkletree.Content) (bool, error) {
	h0, err := mc.CalculateHash()
	if err != nil {
		return false, err
	}

	h1, err := other.CalculateHash()
	if err != nil {
		return false, err
	}

	return bytes.Equal(h0, h1), nil
}

func (mc *moveContent) MarshalJSON() ([]byte, error) {
	if len(mc.value) == 0 {
		return nil, errors.New("failed to marshal move content with nil value")
	}

	val := base64.RawStdEncoding.EncodeToString(mc.value)
	return []byte(fmt.Sprintf("{\"value\": \"%s\"}", val)), nil
}

func (mc *moveContent) UnmarshalJSON(raw []byte) error {
	var params map[string]interface{}
	err := json.Unmarshal(raw, &params)
	if err != nil {
		return err
	}

	val, ok := params["value"].(string)
	if !ok {
		return errors.New("failed to unmarshal move content with nil value")
	}

	mc.value, err = base64.RawStdEncoding.DecodeString(val)
	if err != nil {
		return err
	}

	return nil
}
