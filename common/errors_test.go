package common

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSignalForMapsProtocolErrors(t *testing.T) {
	assert.Equal(t, ConflictSessionExpired, SignalFor(ErrSessionExpired))
	assert.Equal(t, ConflictOutOfSync, SignalFor(ErrOutOfSync))
	assert.Equal(t, ConflictHashConflict, SignalFor(ErrHashConflict))
	assert.Equal(t, ConflictNone, SignalFor(nil))
	assert.Equal(t, ConflictNone, SignalFor(errors.New("unrelated")))
}

func TestSignalForUnwrapsWrappedErrors(t *testing.T) {
	wrapped := fmt.Errorf("%w; session bound to another room", ErrSessionExpired)
	assert.Equal(t, ConflictSessionExpired, SignalFor(wrapped))
}

func TestConflictSignalString(t *testing.T) {
	assert.Equal(t, "none", ConflictNone.String())
	assert.Equal(t, "session_expired", ConflictSessionExpired.String())
	assert.Equal(t, "out_of_sync", ConflictOutOfSync.String())
	assert.Equal(t, "hash_conflict", ConflictHashConflict.String())
}
