package pap_test

import (
	"context"
	"encoding/hex"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"accessd/crypto"
	"accessd/pap"
)

// memStore is an in-memory fake of pap.Store, in the mockWallet-style
// hand-rolled collaborator tradition these tests favor over a mocking
// framework.
type memStore struct {
	data map[[32]byte]pap.Record
}

func newMemStore() *memStore { return &memStore{data: make(map[[32]byte]pap.Record)} }

func (s *memStore) Put(id [32]byte, rec pap.Record) error {
	s.data[id] = rec
	return nil
}

func (s *memStore) Get(id [32]byte) (pap.Record, error) {
	rec, ok := s.data[id]
	if !ok {
		return pap.Record{}, pap.ErrNotFound
	}
	return rec, nil
}

func (s *memStore) Has(id [32]byte) (bool, error) {
	_, ok := s.data[id]
	return ok, nil
}

func (s *memStore) Del(id [32]byte) error {
	delete(s.data, id)
	return nil
}

// staticResolver always resolves to the same keypair, standing in for the
// subject-pubkey service in tests.
type staticResolver struct {
	pub crypto.PublicKey
	err error
}

func (r staticResolver) Resolve(ctx context.Context, subjectID string) (crypto.PublicKey, error) {
	return r.pub, r.err
}

func buildEnvelope(t *testing.T, subjectSK crypto.PrivateKey, policyObject string) ([]byte, [32]byte) {
	t.Helper()
	objectBytes := []byte(policyObject)
	id := crypto.SHA256(objectBytes)
	inner := fmt.Sprintf(`{"policy_id":"%s","hash_function":"sha-256","policy_object":%s}`,
		hex.EncodeToString(id[:]), policyObject)
	envelope := crypto.SignAttached(subjectSK, []byte(inner))
	return envelope, id
}

func newEngine(t *testing.T, store pap.Store, resolver pap.PubKeyResolver) (*pap.Engine, crypto.Signer) {
	t.Helper()
	modulePub, moduleSK, err := crypto.GenerateKeypair()
	require.NoError(t, err)
	signer := crypto.NewModuleSigner(modulePub, moduleSK)
	return pap.New(store, signer, resolver), signer
}

func TestAddPolicyRoundTrip(t *testing.T) {
	store := newMemStore()
	subjectPub, subjectSK, err := crypto.GenerateKeypair()
	require.NoError(t, err)
	engine, _ := newEngine(t, store, staticResolver{pub: subjectPub})

	envelope, wantID := buildEnvelope(t, subjectSK, `{"policy_goc":{"type":"boolean","value":"true"}}`)

	gotID, err := engine.AddPolicy(context.Background(), "subject-1", envelope)
	require.NoError(t, err)
	require.Equal(t, wantID, gotID)

	has, err := engine.HasPolicy(gotID)
	require.NoError(t, err)
	require.True(t, has)

	rec, err := engine.GetPolicy(gotID)
	require.NoError(t, err)
	require.Equal(t, crypto.SchemeEd25519, rec.SigAlg)

	require.NoError(t, engine.RemovePolicy(gotID))
	has, err = engine.HasPolicy(gotID)
	require.NoError(t, err)
	require.False(t, has)
}

func TestAddPolicyRejectsBadSignature(t *testing.T) {
	store := newMemStore()
	subjectPub, _, err := crypto.GenerateKeypair()
	require.NoError(t, err)
	_, otherSK, err := crypto.GenerateKeypair()
	require.NoError(t, err)
	engine, _ := newEngine(t, store, staticResolver{pub: subjectPub})

	envelope, _ := buildEnvelope(t, otherSK, `{"policy_goc":{"type":"boolean","value":"true"}}`)

	_, err = engine.AddPolicy(context.Background(), "subject-1", envelope)
	require.ErrorIs(t, err, pap.ErrBadSignature)
}

func TestAddPolicyRejectsIDMismatch(t *testing.T) {
	store := newMemStore()
	subjectPub, subjectSK, err := crypto.GenerateKeypair()
	require.NoError(t, err)
	engine, _ := newEngine(t, store, staticResolver{pub: subjectPub})

	objectBytes := []byte(`{"policy_goc":{"type":"boolean","value":"true"}}`)
	wrongID := crypto.SHA256([]byte("not the real object"))
	inner := fmt.Sprintf(`{"policy_id":"%s","hash_function":"sha-256","policy_object":%s}`,
		hex.EncodeToString(wrongID[:]), objectBytes)
	envelope := crypto.SignAttached(subjectSK, []byte(inner))

	_, err = engine.AddPolicy(context.Background(), "subject-1", envelope)
	require.ErrorIs(t, err, pap.ErrIDMismatch)
}

func TestAddPolicyRejectsDuplicate(t *testing.T) {
	store := newMemStore()
	subjectPub, subjectSK, err := crypto.GenerateKeypair()
	require.NoError(t, err)
	engine, _ := newEngine(t, store, staticResolver{pub: subjectPub})

	envelope, _ := buildEnvelope(t, subjectSK, `{"policy_goc":{"type":"boolean","value":"true"}}`)
	_, err = engine.AddPolicy(context.Background(), "subject-1", envelope)
	require.NoError(t, err)

	_, err = engine.AddPolicy(context.Background(), "subject-1", envelope)
	require.ErrorIs(t, err, pap.ErrDuplicate)
}

func TestAddPolicyRejectsBadPolicyIDLength(t *testing.T) {
	store := newMemStore()
	subjectPub, subjectSK, err := crypto.GenerateKeypair()
	require.NoError(t, err)
	engine, _ := newEngine(t, store, staticResolver{pub: subjectPub})

	inner := `{"policy_id":"deadbeef","hash_function":"sha-256","policy_object":{"type":"boolean","value":"true"}}`
	envelope := crypto.SignAttached(subjectSK, []byte(inner))

	_, err = engine.AddPolicy(context.Background(), "subject-1", envelope)
	require.ErrorIs(t, err, pap.ErrMalformed)
}

func TestAddPolicyRejectsUnsupportedHash(t *testing.T) {
	store := newMemStore()
	subjectPub, subjectSK, err := crypto.GenerateKeypair()
	require.NoError(t, err)
	engine, _ := newEngine(t, store, staticResolver{pub: subjectPub})

	id := crypto.SHA256([]byte(`{"type":"boolean","value":"true"}`))
	inner := fmt.Sprintf(`{"policy_id":"%s","hash_function":"sha-512","policy_object":{"type":"boolean","value":"true"}}`,
		hex.EncodeToString(id[:]))
	envelope := crypto.SignAttached(subjectSK, []byte(inner))

	_, err = engine.AddPolicy(context.Background(), "subject-1", envelope)
	require.ErrorIs(t, err, pap.ErrUnsupportedHash)
}

func TestAddPolicyNormalizationEquivalence(t *testing.T) {
	store := newMemStore()
	subjectPub, subjectSK, err := crypto.GenerateKeypair()
	require.NoError(t, err)
	engine, _ := newEngine(t, store, staticResolver{pub: subjectPub})

	compact := `{"policy_goc":{"type":"boolean","value":"true"}}`
	pretty := "{\n  \"policy_goc\": {\n    \"type\": \"boolean\",\n    \"value\": \"true\"\n  }\n}"

	id := crypto.SHA256([]byte(compact))
	inner := fmt.Sprintf(`{"policy_id":"%s","hash_function":"sha-256","policy_object":%s}`,
		hex.EncodeToString(id[:]), pretty)
	envelope := crypto.SignAttached(subjectSK, []byte(inner))

	gotID, err := engine.AddPolicy(context.Background(), "subject-1", envelope)
	require.NoError(t, err)
	require.Equal(t, id, gotID)
}

func TestGetPolicyDetectsTamper(t *testing.T) {
	store := newMemStore()
	subjectPub, subjectSK, err := crypto.GenerateKeypair()
	require.NoError(t, err)
	engine, _ := newEngine(t, store, staticResolver{pub: subjectPub})

	envelope, id := buildEnvelope(t, subjectSK, `{"policy_goc":{"type":"boolean","value":"true"}}`)
	_, err = engine.AddPolicy(context.Background(), "subject-1", envelope)
	require.NoError(t, err)

	rec := store.data[id]
	rec.ObjectBytes[0] ^= 0xFF
	store.data[id] = rec

	_, err = engine.GetPolicy(id)
	require.ErrorIs(t, err, pap.ErrIntegrityViolation)
}

func TestAddPolicyNoSubmitterKey(t *testing.T) {
	store := newMemStore()
	resolver := staticResolver{err: fmt.Errorf("unreachable")}
	engine, _ := newEngine(t, store, resolver)

	_, err := engine.AddPolicy(context.Background(), "subject-1", []byte("whatever"))
	require.ErrorIs(t, err, pap.ErrNoSubmitterKey)
}

func TestAddPolicyNotConfiguredWithoutStore(t *testing.T) {
	subjectPub, _, err := crypto.GenerateKeypair()
	require.NoError(t, err)
	engine, _ := newEngine(t, nil, staticResolver{pub: subjectPub})

	_, err = engine.AddPolicy(context.Background(), "subject-1", []byte("whatever"))
	require.ErrorIs(t, err, pap.ErrNotConfigured)
}

