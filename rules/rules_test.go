package rules

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/1MGAMINGcompany/one-million-spark-sub008/common"
	"github.com/1MGAMINGcompany/one-million-spark-sub008/session"
)

func testDescriptor() *Descriptor {
	return &Descriptor{
		RoomID:          "room-1",
		GameType:        "backgammon",
		MaxPlayers:      2,
		StakeAmount:     1000000,
		Mode:            ModeRanked,
		TurnTimeSeconds: 60,
	}
}

func TestDescriptorHashDeterministic(t *testing.T) {
	d0 := testDescriptor()
	d1 := testDescriptor()

	assert.Equal(t, d0.Hash(), d1.Hash())
	assert.Len(t, d0.Hash(), 64)
}

func TestDescriptorHashSensitiveToRulesChange(t *testing.T) {
	d0 := testDescriptor()
	d1 := testDescriptor()
	d1.TurnTimeSeconds = 30

	assert.NotEqual(t, d0.Hash(), d1.Hash())
}

func TestSignatureRoundTrip(t *testing.T) {
	keypair, err := GenerateKeypair()
	require.NoError(t, err)

	descriptor := testDescriptor()
	digest := SigningDigest(descriptor.RoomID, keypair.Address(), descriptor.Hash())

	signature, err := keypair.Sign(context.Background(), digest)
	require.NoError(t, err)

	err = VerifySignature(keypair.PublicKey(), keypair.Address(), digest, signature)
	assert.NoError(t, err)
}

func TestSignatureRejectsTamperedDigest(t *testing.T) {
	keypair, err := GenerateKeypair()
	require.NoError(t, err)

	descriptor := testDescriptor()
	digest := SigningDigest(descriptor.RoomID, keypair.Address(), descriptor.Hash())

	signature, err := keypair.Sign(context.Background(), digest)
	require.NoError(t, err)

	tampered := testDescriptor()
	tampered.StakeAmount = 2000000
	forged := SigningDigest(tampered.RoomID, keypair.Address(), tampered.Hash())

	err = VerifySignature(keypair.PublicKey(), keypair.Address(), forged, signature)
	assert.Error(t, err)
}

func TestSignatureRejectsForeignAddress(t *testing.T) {
	keypair, err := GenerateKeypair()
	require.NoError(t, err)

	other, err := GenerateKeypair()
	require.NoError(t, err)

	digest := SigningDigest("room-1", other.Address(), testDescriptor().Hash())
	signature, err := keypair.Sign(context.Background(), digest)
	require.NoError(t, err)

	err = VerifySignature(keypair.PublicKey(), other.Address(), digest, signature)
	assert.Error(t, err)
}

type staticSource struct {
	descriptor *Descriptor
}

func (s *staticSource) Descriptor(ctx context.Context, roomID string) (*Descriptor, error) {
	return s.descriptor, nil
}

type fakeVerifier struct {
	calls  int32
	reject bool
}

func (v *fakeVerifier) VerifyAcceptance(ctx context.Context, acceptance *Acceptance, descriptor *Descriptor) (*session.Info, error) {
	atomic.AddInt32(&v.calls, 1)
	if v.reject {
		return nil, common.ErrVerificationRejected
	}
	return &session.Info{
		Token:     common.RandomString(64),
		ExpiresAt: time.Now().Add(time.Hour),
		RoomID:    descriptor.RoomID,
		RulesHash: *acceptance.RulesHash,
	}, nil
}

type promptSigner struct {
	keypair *Keypair
	decline bool
	prompts int32
}

func (s *promptSigner) Address() string {
	return s.keypair.Address()
}

func (s *promptSigner) PublicKey() string {
	return s.keypair.PublicKey()
}

func (s *promptSigner) Sign(ctx context.Context, digest []byte) (string, error) {
	atomic.AddInt32(&s.prompts, 1)
	if s.decline {
		return "", common.ErrUserRejected
	}
	return s.keypair.Sign(ctx, digest)
}

func testAcceptor(t *testing.T, signer Signer, verifier Verifier, descriptor *Descriptor) (*Acceptor, *session.Store) {
	store := session.NewStore(session.NewMemoryKV(), signer.Address())
	return NewAcceptor(signer, &staticSource{descriptor: descriptor}, verifier, store), store
}

func TestAcceptAndGetSessionBindsRulesHash(t *testing.T) {
	keypair, err := GenerateKeypair()
	require.NoError(t, err)

	descriptor := testDescriptor()
	signer := &promptSigner{keypair: keypair}
	verifier := &fakeVerifier{}
	acceptor, store := testAcceptor(t, signer, verifier, descriptor)

	info, err := acceptor.AcceptAndGetSession(context.Background(), descriptor.RoomID)
	require.NoError(t, err)
	require.NotNil(t, info)

	assert.Equal(t, descriptor.Hash(), info.RulesHash)
	assert.Equal(t, descriptor.RoomID, info.RoomID)

	persisted, err := store.Session(descriptor.RoomID)
	require.NoError(t, err)
	require.NotNil(t, persisted)
	assert.Equal(t, info.Token, persisted.Token)
}

func TestAcceptAndGetSessionReusesValidSession(t *testing.T) {
	keypair, err := GenerateKeypair()
	require.NoError(t, err)

	descriptor := testDescriptor()
	signer := &promptSigner{keypair: keypair}
	verifier := &fakeVerifier{}
	acceptor, _ := testAcceptor(t, signer, verifier, descriptor)

	first, err := acceptor.AcceptAndGetSession(context.Background(), descriptor.RoomID)
	require.NoError(t, err)

	second, err := acceptor.AcceptAndGetSession(context.Background(), descriptor.RoomID)
	require.NoError(t, err)

	assert.Equal(t, first.Token, second.Token)
	assert.Equal(t, int32(1), atomic.LoadInt32(&signer.prompts))
	assert.Equal(t, int32(1), atomic.LoadInt32(&verifier.calls))
}

func TestAcceptAndGetSessionInvalidatedByRulesChange(t *testing.T) {
	keypair, err := GenerateKeypair()
	require.NoError(t, err)

	descriptor := testDescriptor()
	source := &staticSource{descriptor: descriptor}
	signer := &promptSigner{keypair: keypair}
	verifier := &fakeVerifier{}
	store := session.NewStore(session.NewMemoryKV(), signer.Address())
	acceptor := NewAcceptor(signer, source, verifier, store)

	first, err := acceptor.AcceptAndGetSession(context.Background(), descriptor.RoomID)
	require.NoError(t, err)
	require.NotNil(t, first)

	// a server-side rules change recomputes to a different hash; the stored
	// session must not survive it
	changed := testDescriptor()
	changed.TurnTimeSeconds = 30
	source.descriptor = changed

	second, err := acceptor.AcceptAndGetSession(context.Background(), descriptor.RoomID)
	require.NoError(t, err)
	require.NotNil(t, second)

	assert.NotEqual(t, first.Token, second.Token)
	assert.Equal(t, changed.Hash(), second.RulesHash)
	assert.Equal(t, int32(2), atomic.LoadInt32(&signer.prompts))
}

func TestAcceptAndGetSessionUserRejected(t *testing.T) {
	keypair, err := GenerateKeypair()
	require.NoError(t, err)

	descriptor := testDescriptor()
	signer := &promptSigner{keypair: keypair, decline: true}
	verifier := &fakeVerifier{}
	acceptor, store := testAcceptor(t, signer, verifier, descriptor)

	info, err := acceptor.AcceptAndGetSession(context.Background(), descriptor.RoomID)
	assert.Nil(t, info)
	assert.ErrorIs(t, err, common.ErrUserRejected)
	assert.Equal(t, int32(0), atomic.LoadInt32(&verifier.calls))

	persisted, err := store.Session(descriptor.RoomID)
	require.NoError(t, err)
	assert.Nil(t, persisted)
}

func TestAcceptAndGetSessionVerificationRejected(t *testing.T) {
	keypair, err := GenerateKeypair()
	require.NoError(t, err)

	descriptor := testDescriptor()
	signer := &promptSigner{keypair: keypair}
	verifier := &fakeVerifier{reject: true}
	acceptor, store := testAcceptor(t, signer, verifier, descriptor)

	info, err := acceptor.AcceptAndGetSession(context.Background(), descriptor.RoomID)
	assert.Nil(t, info)
	assert.ErrorIs(t, err, common.ErrVerificationRejected)

	persisted, err := store.Session(descriptor.RoomID)
	require.NoError(t, err)
	assert.Nil(t, persisted)
}

type slowSigner struct {
	promptSigner
}

func (s *slowSigner) Sign(ctx context.Context, digest []byte) (string, error) {
	time.Sleep(50 * time.Millisecond)
	return s.promptSigner.Sign(ctx, digest)
}

func TestAcceptAndGetSessionSharesPendingFlight(t *testing.T) {
	keypair, err := GenerateKeypair()
	require.NoError(t, err)

	descriptor := testDescriptor()
	signer := &slowSigner{promptSigner{keypair: keypair}}
	verifier := &fakeVerifier{}
	acceptor, _ := testAcceptor(t, signer, verifier, descriptor)

	var wg sync.WaitGroup
	tokens := make([]string, 4)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			info, err := acceptor.AcceptAndGetSession(context.Background(), descriptor.RoomID)
			if err == nil && info != nil {
				tokens[i] = info.Token
			}
		}(i)
	}
	wg.Wait()

	// concurrent callers share the pending flow; only one signature prompt
	assert.Equal(t, int32(1), atomic.LoadInt32(&signer.prompts))
	for i := 1; i < 4; i++ {
		assert.Equal(t, tokens[0], tokens[i], fmt.Sprintf("caller %d received a different session", i))
	}
}
