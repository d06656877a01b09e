package pap

import (
	"context"

	"accessd/crypto"
)

// Record is the persisted shape of an admitted policy: the normalized
// object bytes, the PAP's re-signature over its content-addressed id, and
// the metadata needed to verify both on read.
type Record struct {
	ObjectBytes     []byte
	ObjectSize      int
	SigAlg          crypto.SignatureScheme
	SubmitterPubKey crypto.PublicKey
	PAPSignature    []byte
	HashFn          string
}

// Store is the storage callback contract: put/get/has/del keyed by the
// 32-byte content-addressed policy id. An Engine built with a nil Store
// returns ErrNotConfigured from every operation that needs one.
type Store interface {
	Put(id [32]byte, rec Record) error
	Get(id [32]byte) (Record, error) // returns ErrNotFound if absent
	Has(id [32]byte) (bool, error)
	Del(id [32]byte) error
}

// PubKeyResolver fetches a subject's public key, backing the first step of
// policy admission. The TCP implementation (package pubkeysvc) queries a
// fixed endpoint with the literal wire request "get_private_key" and
// retries once per second for up to ten seconds.
type PubKeyResolver interface {
	Resolve(ctx context.Context, subjectID string) (crypto.PublicKey, error)
}
