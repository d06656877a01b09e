package pdp

import "errors"

// The PDP maps any underlying failure to its own taxonomy rather than
// leaking the PAP's or PIP's sentinels to callers.
var (
	ErrNoPolicyID       = errors.New("pdp: request missing policy_id")
	ErrPolicyUnavailable = errors.New("pdp: policy administration point could not return the policy")
	ErrDecisionFailed   = errors.New("pdp: decision failed")
)
