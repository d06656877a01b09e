// Package e2e exercises the access-control core's end-to-end scenarios,
// wiring real pap.Engine/pdp.Engine instances over an in-memory store so the
// PAP's admission/signature machinery and the PDP's evaluator are proven
// together, not in isolation.
package e2e_test

import (
	"context"
	"encoding/hex"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"accessd/crypto"
	"accessd/pap"
	"accessd/pdp"
	"accessd/pip"
)

type memStore struct {
	data map[[32]byte]pap.Record
}

func newMemStore() *memStore { return &memStore{data: make(map[[32]byte]pap.Record)} }

func (s *memStore) Put(id [32]byte, rec pap.Record) error { s.data[id] = rec; return nil }
func (s *memStore) Get(id [32]byte) (pap.Record, error) {
	rec, ok := s.data[id]
	if !ok {
		return pap.Record{}, pap.ErrNotFound
	}
	return rec, nil
}
func (s *memStore) Has(id [32]byte) (bool, error) { _, ok := s.data[id]; return ok, nil }
func (s *memStore) Del(id [32]byte) error         { delete(s.data, id); return nil }

type staticResolver struct{ pub crypto.PublicKey }

func (r staticResolver) Resolve(context.Context, string) (crypto.PublicKey, error) { return r.pub, nil }

type system struct {
	store     *memStore
	pap       *pap.Engine
	pdp       *pdp.Engine
	pipRes    *pip.Static
	subjectSK crypto.PrivateKey
}

func newSystem(t *testing.T) *system {
	t.Helper()
	store := newMemStore()
	subjectPub, subjectSK, err := crypto.GenerateKeypair()
	require.NoError(t, err)
	modulePub, moduleSK, err := crypto.GenerateKeypair()
	require.NoError(t, err)
	signer := crypto.NewModuleSigner(modulePub, moduleSK)

	papEngine := pap.New(store, signer, staticResolver{pub: subjectPub})
	resolver := pip.NewStatic()
	pdpEngine := pdp.New(papEngine, resolver)

	return &system{store: store, pap: papEngine, pdp: pdpEngine, pipRes: resolver, subjectSK: subjectSK}
}

func (s *system) admit(t *testing.T, policyObject string) [32]byte {
	t.Helper()
	id := crypto.SHA256([]byte(policyObject))
	inner := fmt.Sprintf(`{"policy_id":"%s","hash_function":"sha-256","policy_object":%s}`,
		hex.EncodeToString(id[:]), policyObject)
	envelope := crypto.SignAttached(s.subjectSK, []byte(inner))
	gotID, err := s.pap.AddPolicy(context.Background(), "subject-1", envelope)
	require.NoError(t, err)
	require.Equal(t, id, gotID)
	return gotID
}

func (s *system) decide(t *testing.T, id [32]byte) pdp.Decision {
	t.Helper()
	req := fmt.Sprintf(`{"policy_id":"%s"}`, hex.EncodeToString(id[:]))
	decision, err := s.pdp.Decide(context.Background(), []byte(req))
	require.NoError(t, err)
	return decision
}

func TestScenarioRoundTrip(t *testing.T) {
	s := newSystem(t)
	id := s.admit(t, `{"policy_goc":{"type":"boolean","value":"true"},"policy_doc":{"type":"boolean","value":"false"}}`)
	require.Equal(t, pdp.CodeGrant, s.decide(t, id).Code)
}

func TestScenarioConflict(t *testing.T) {
	s := newSystem(t)
	id := s.admit(t, `{"policy_goc":{"type":"boolean","value":"true"},"policy_doc":{"type":"boolean","value":"true"}}`)
	require.Equal(t, pdp.CodeConflict, s.decide(t, id).Code)
}

func TestScenarioGap(t *testing.T) {
	s := newSystem(t)
	id := s.admit(t, `{"policy_goc":{"type":"boolean","value":"false"},"policy_doc":{"type":"boolean","value":"false"}}`)
	require.Equal(t, pdp.CodeGAP, s.decide(t, id).Code)
}

func TestScenarioTimeWindow(t *testing.T) {
	s := newSystem(t)
	s.pipRes.Set("subject.role", "admin", "role")
	s.pipRes.Set("request.time", "1500", "time")

	policy := `{"policy_goc":{"operation":"and","attribute_list":[` +
		`{"operation":"eq","attribute_list":[{"type":"role","value":"admin"},{"type":"role","value":"subject.role"}]},` +
		`{"operation":"geq","attribute_list":[{"type":"attr","value":"request.time"},{"type":"time","value":"1000"}]},` +
		`{"operation":"leq","attribute_list":[{"type":"attr","value":"request.time"},{"type":"time","value":"2000"}]}` +
		`]},"policy_doc":{"type":"boolean","value":"false"}}`

	id := s.admit(t, policy)
	decision := s.decide(t, id)
	require.Equal(t, pdp.CodeGrant, decision.Code)
	require.Equal(t, uint64(1000), decision.Action.StartTime)
	require.Equal(t, uint64(2000), decision.Action.StopTime)
}

func TestScenarioTamperDetection(t *testing.T) {
	s := newSystem(t)
	id := s.admit(t, `{"policy_goc":{"type":"boolean","value":"true"},"policy_doc":{"type":"boolean","value":"false"}}`)

	rec := s.store.data[id]
	rec.ObjectBytes[0] ^= 0xFF
	s.store.data[id] = rec

	_, err := s.pap.GetPolicy(id)
	require.ErrorIs(t, err, pap.ErrIntegrityViolation)
}

func TestScenarioObligationIf(t *testing.T) {
	policy := `{"policy_goc":{"type":"boolean","value":"true"},` +
		`"policy_doc":{"type":"boolean","value":"false"},` +
		`"obligation_grant":{"operation":"if","attribute_list":[` +
		`{"operation":"eq","attribute_list":[{"type":"kind","value":"vip"},{"type":"kind","value":"subject.kind"}]},` +
		`{"type":"obligation","value":"gold"},` +
		`{"type":"obligation","value":"silver"}]}}`

	vip := newSystem(t)
	vip.pipRes.Set("subject.kind", "vip", "kind")
	idVIP := vip.admit(t, policy)
	require.Equal(t, "gold", vip.decide(t, idVIP).Obligation)

	guest := newSystem(t)
	guest.pipRes.Set("subject.kind", "guest", "kind")
	idGuest := guest.admit(t, policy)
	require.Equal(t, "silver", guest.decide(t, idGuest).Obligation)
}
