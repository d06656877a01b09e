package storage

import (
	"encoding/json"
	"errors"
	"fmt"

	"accessd/crypto"
	"accessd/pap"
)

// wireRecord is the JSON-on-the-wire shape of a pap.Record, chosen over a
// binary layout — nothing in this store is performance-sensitive enough to
// justify hand-rolled encoding.
type wireRecord struct {
	ObjectBytes     []byte                 `json:"object_bytes"`
	ObjectSize      int                    `json:"object_size"`
	SigAlg          crypto.SignatureScheme `json:"sig_alg"`
	SubmitterPubKey []byte                 `json:"submitter_pubkey"`
	PAPSignature    []byte                 `json:"pap_signature"`
	HashFn          string                 `json:"hash_fn"`
}

// PolicyStore adapts a generic Database into the pap.Store contract, keyed
// by the 32-byte content-addressed policy id.
type PolicyStore struct {
	db Database
}

// NewPolicyStore wraps db as a PolicyStore.
func NewPolicyStore(db Database) *PolicyStore {
	return &PolicyStore{db: db}
}

func policyKey(id [32]byte) []byte {
	key := make([]byte, len(id))
	copy(key, id[:])
	return key
}

// Put serializes and stores rec under id.
func (s *PolicyStore) Put(id [32]byte, rec pap.Record) error {
	encoded, err := json.Marshal(wireRecord{
		ObjectBytes:     rec.ObjectBytes,
		ObjectSize:      rec.ObjectSize,
		SigAlg:          rec.SigAlg,
		SubmitterPubKey: rec.SubmitterPubKey,
		PAPSignature:    rec.PAPSignature,
		HashFn:          rec.HashFn,
	})
	if err != nil {
		return fmt.Errorf("storage: encode policy record: %w", err)
	}
	return s.db.Put(policyKey(id), encoded)
}

// Get retrieves and deserializes the record stored under id. If absent, the
// returned error matches both pap.ErrNotFound and ErrNotFound.
func (s *PolicyStore) Get(id [32]byte) (pap.Record, error) {
	raw, err := s.db.Get(policyKey(id))
	if errors.Is(err, ErrNotFound) {
		return pap.Record{}, fmt.Errorf("%w: %w", pap.ErrNotFound, err)
	}
	if err != nil {
		return pap.Record{}, err
	}
	var wire wireRecord
	if err := json.Unmarshal(raw, &wire); err != nil {
		return pap.Record{}, fmt.Errorf("storage: decode policy record: %w", err)
	}
	return pap.Record{
		ObjectBytes:     wire.ObjectBytes,
		ObjectSize:      wire.ObjectSize,
		SigAlg:          wire.SigAlg,
		SubmitterPubKey: wire.SubmitterPubKey,
		PAPSignature:    wire.PAPSignature,
		HashFn:          wire.HashFn,
	}, nil
}

// Has reports whether id is present.
func (s *PolicyStore) Has(id [32]byte) (bool, error) {
	return s.db.Has(policyKey(id))
}

// Del removes the record stored under id.
func (s *PolicyStore) Del(id [32]byte) error {
	return s.db.Delete(policyKey(id))
}
