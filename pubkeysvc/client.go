// Package pubkeysvc implements the subject-pubkey service client: a TCP
// round trip that sends the literal wire request "get_private_key" and
// reads back PublicKeyLen bytes. The request name is a misnomer kept for
// wire compatibility with existing deployments — the response is a public key.
//
// Grounded on original_source/access/pap/pap.c's get_public_key_from_user,
// which retries the connection once per second for up to ten seconds before
// giving up, and on the raw net.Listen/net.Dial style the p2p package uses
// for its own TCP transport rather than a higher-level RPC framework
// (there is no framing or multiplexing here for one to add value over).
package pubkeysvc

import (
	"context"
	"fmt"
	"io"
	"net"
	"time"

	"accessd/crypto"
)

const (
	wireRequest = "get_private_key"

	dialTimeout  = 3 * time.Second
	readTimeout  = 5 * time.Second
	retryBudget  = 10 * time.Second
	retryCadence = 1 * time.Second
)

// Client fetches subject public keys from a fixed TCP endpoint, implementing
// pap.PubKeyResolver.
type Client struct {
	addr string
}

// NewClient builds a Client dialing addr (host:port) for every request.
func NewClient(addr string) *Client {
	return &Client{addr: addr}
}

// Resolve implements pap.PubKeyResolver. It retries the round trip once per
// second for up to ten seconds before giving up; subjectID is currently
// opaque to the wire protocol, which has no per-subject addressing of its
// own.
func (c *Client) Resolve(ctx context.Context, subjectID string) (crypto.PublicKey, error) {
	deadline := time.Now().Add(retryBudget)
	var lastErr error
	for {
		pk, err := c.fetchOnce(ctx)
		if err == nil {
			return pk, nil
		}
		lastErr = err

		if time.Now().After(deadline) {
			return nil, fmt.Errorf("pubkeysvc: resolve %q: %w", subjectID, lastErr)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(retryCadence):
		}
	}
}

func (c *Client) fetchOnce(ctx context.Context) (crypto.PublicKey, error) {
	dialer := net.Dialer{Timeout: dialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", c.addr)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	if err := conn.SetDeadline(time.Now().Add(readTimeout)); err != nil {
		return nil, err
	}
	if _, err := io.WriteString(conn, wireRequest); err != nil {
		return nil, err
	}

	buf := make([]byte, crypto.PublicKeyLen)
	if _, err := io.ReadFull(conn, buf); err != nil {
		return nil, err
	}
	return crypto.PublicKey(buf), nil
}
