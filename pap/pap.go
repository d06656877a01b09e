// Package pap implements the Policy Administration Point: admission,
// retrieval, and removal of signed policies, content-addressed by the
// SHA-256 digest of their normalized bytes.
package pap

import (
	"context"
	"encoding/hex"
	"fmt"
	"log/slog"
	"sync"

	"accessd/core/events"
	"accessd/crypto"
	"accessd/jsonview"
	"accessd/observability/logging"
	"accessd/observability/metrics"
)

// Option configures an Engine at construction time.
type Option func(*Engine)

// WithLogger attaches a structured logger; admission outcomes are logged at
// Info/Warn. Nil disables logging (the default).
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// WithEmitter attaches an audit-event sink. Defaults to events.NoopEmitter{}.
func WithEmitter(emitter events.Emitter) Option {
	return func(e *Engine) { e.emitter = emitter }
}

// WithMetrics attaches a Prometheus metrics registry.
func WithMetrics(m *metrics.AccessMetrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithMaxTokens bounds tokenization of inbound envelopes (defaults to
// jsonview.DefaultMaxTokens).
func WithMaxTokens(n int) Option {
	return func(e *Engine) { e.maxTokens = n }
}

// Engine is the PAP: a single mutex guards every public operation, shaped
// like native/governance.Engine (a struct holding injected collaborators).
type Engine struct {
	mu sync.Mutex

	store    Store
	signer   crypto.Signer
	pubkeys  PubKeyResolver

	logger    *slog.Logger
	emitter   events.Emitter
	metrics   *metrics.AccessMetrics
	maxTokens int
}

// New constructs a PAP Engine. store, signer, and pubkeys are required
// collaborators; store may be nil, in which case operations that need it
// return ErrNotConfigured. Collaborators are injected at construction time
// rather than registered through mutable package globals.
func New(store Store, signer crypto.Signer, pubkeys PubKeyResolver, opts ...Option) *Engine {
	e := &Engine{
		store:     store,
		signer:    signer,
		pubkeys:   pubkeys,
		emitter:   events.NoopEmitter{},
		maxTokens: jsonview.DefaultMaxTokens,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// AdmissionEvent is emitted for audit trails on add_policy outcomes,
// successful or not, from the submitter-key lookup onward. Calls rejected
// for a missing store or empty input, and storage Has/Put failures, emit no
// event.
type AdmissionEvent struct {
	PolicyID string
	SubjectID string
	Result   string
}

// EventType implements events.Event.
func (AdmissionEvent) EventType() string { return "pap.policy_admitted" }

func stripASCIIWhitespace(b []byte) []byte {
	out := make([]byte, 0, len(b))
	for _, c := range b {
		switch c {
		case ' ', '\t', '\r', '\n':
			continue
		default:
			out = append(out, c)
		}
	}
	return out
}

// AddPolicy ingests a signed policy envelope submitted by subjectID:
// resolving the submitter's key, verifying the envelope signature,
// checking content addressing, and re-signing under the module key.
func (e *Engine) AddPolicy(ctx context.Context, subjectID string, envelope []byte) ([32]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	var zero [32]byte
	if e.store == nil {
		return zero, ErrNotConfigured
	}
	if len(envelope) == 0 || subjectID == "" {
		return zero, ErrBadInput
	}

	// Step 1: fetch the submitter's public key.
	submitterPK, err := e.pubkeys.Resolve(ctx, subjectID)
	if err != nil {
		e.recordAdmission(subjectID, "", "no_submitter_key")
		return zero, fmt.Errorf("%w: %v", ErrNoSubmitterKey, err)
	}

	// Step 2: verify the attached envelope signature, recovering the inner
	// JSON plaintext.
	inner, err := crypto.VerifyAttached(submitterPK, envelope)
	if err != nil {
		e.recordAdmission(subjectID, "", "bad_signature")
		return zero, fmt.Errorf("%w: %v", ErrBadSignature, err)
	}

	// Step 3: tokenize the inner JSON.
	view, err := jsonview.TokenizeLimit(inner, e.maxTokens)
	if err != nil {
		e.recordAdmission(subjectID, "", "malformed")
		return zero, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	root := view.Root()

	// Step 4: locate required fields.
	policyIDTok, ok := view.FindKey(root, "policy_id")
	if !ok {
		e.recordAdmission(subjectID, "", "malformed")
		return zero, fmt.Errorf("%w: missing policy_id", ErrMalformed)
	}
	policyObjTok, ok := view.FindKey(root, "policy_object")
	if !ok {
		e.recordAdmission(subjectID, "", "malformed")
		return zero, fmt.Errorf("%w: missing policy_object", ErrMalformed)
	}
	hashFnTok, ok := view.FindKey(root, "hash_function")
	if !ok {
		e.recordAdmission(subjectID, "", "malformed")
		return zero, fmt.Errorf("%w: missing hash_function", ErrMalformed)
	}
	hashFn := string(view.Text(hashFnTok))
	if hashFn != "sha-256" {
		e.recordAdmission(subjectID, "", "unsupported_hash")
		return zero, fmt.Errorf("%w: %q", ErrUnsupportedHash, hashFn)
	}

	// Step 5: hex-decode the declared policy id.
	idBytes, err := hex.DecodeString(string(view.Text(policyIDTok)))
	if err != nil || len(idBytes) != crypto.PolicyIDLen {
		e.recordAdmission(subjectID, "", "malformed")
		return zero, fmt.Errorf("%w: bad policy_id length", ErrMalformed)
	}
	var id [32]byte
	copy(id[:], idBytes)

	// Step 6: normalize policy_object bytes.
	objectBytes := stripASCIIWhitespace(view.Text(policyObjTok))

	// Step 7-8: cross-check content addressing.
	computed := crypto.SHA256(objectBytes)
	if !crypto.ConstantTimeEqual(computed[:], id[:]) {
		e.recordAdmission(subjectID, hex.EncodeToString(id[:]), "id_mismatch")
		return zero, ErrIDMismatch
	}

	// Step 9: reject duplicates.
	exists, err := e.store.Has(id)
	if err != nil {
		return zero, fmt.Errorf("pap: check duplicate: %w", err)
	}
	if exists {
		e.recordAdmission(subjectID, hex.EncodeToString(id[:]), "duplicate")
		return zero, ErrDuplicate
	}

	// Step 10-11: re-sign under the module key and persist.
	papSig := e.signer.SignDetached(id[:])
	rec := Record{
		ObjectBytes:     objectBytes,
		ObjectSize:      len(objectBytes),
		SigAlg:          crypto.SchemeEd25519,
		SubmitterPubKey: submitterPK,
		PAPSignature:    papSig,
		HashFn:          hashFn,
	}
	if err := e.store.Put(id, rec); err != nil {
		return zero, fmt.Errorf("pap: store policy: %w", err)
	}

	e.recordAdmission(subjectID, hex.EncodeToString(id[:]), "admitted")
	return id, nil
}

// GetPolicy retrieves and re-validates a stored record. It recomputes the
// expected signature and compares bytes rather than calling
// crypto.VerifyDetached, since Ed25519 signing is deterministic and the two
// checks are equivalent for this scheme (see DESIGN.md).
func (e *Engine) GetPolicy(id [32]byte) (Record, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.store == nil {
		return Record{}, ErrNotConfigured
	}
	rec, err := e.store.Get(id)
	if err != nil {
		return Record{}, err
	}

	checkID := crypto.SHA256(rec.ObjectBytes)
	expectedSig := e.signer.SignDetached(checkID[:])
	if !crypto.ConstantTimeEqual(expectedSig, rec.PAPSignature) {
		return Record{}, ErrIntegrityViolation
	}
	return rec, nil
}

// HasPolicy reports whether id is currently stored.
func (e *Engine) HasPolicy(id [32]byte) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.store == nil {
		return false, ErrNotConfigured
	}
	return e.store.Has(id)
}

// RemovePolicy deletes the record stored under id.
func (e *Engine) RemovePolicy(id [32]byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.store == nil {
		return ErrNotConfigured
	}
	return e.store.Del(id)
}

// recordAdmission logs, counts, and emits an admission outcome. The subject
// identifier is masked before it reaches the log line — it names a
// real-world principal (see pap.PubKeyResolver), unlike policy_id, which is
// a content hash and safe to log in full for correlation.
func (e *Engine) recordAdmission(subjectID, policyID, result string) {
	if e.logger != nil {
		subjectAttr := logging.MaskField("subject", subjectID)
		if result == "admitted" {
			e.logger.Info("policy admitted", subjectAttr, "policy_id", policyID)
		} else {
			e.logger.Warn("policy admission failed", subjectAttr, "policy_id", policyID, "result", result)
		}
	}
	e.metrics.ObservePolicyAdmitted(result)
	e.emitter.Emit(AdmissionEvent{PolicyID: policyID, SubjectID: subjectID, Result: result})
}
