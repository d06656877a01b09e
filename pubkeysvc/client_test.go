package pubkeysvc_test

import (
	"context"
	"io"
	"net"
	"testing"

	"github.com/stretchr/testify/require"

	"accessd/crypto"
	"accessd/pubkeysvc"
)

func serveOnce(t *testing.T, pub crypto.PublicKey) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		req := make([]byte, len("get_private_key"))
		if _, err := io.ReadFull(conn, req); err != nil {
			return
		}
		conn.Write(pub)
	}()

	return ln.Addr().String()
}

func TestClientResolveFetchesPublicKey(t *testing.T) {
	pub, _, err := crypto.GenerateKeypair()
	require.NoError(t, err)

	addr := serveOnce(t, pub)
	client := pubkeysvc.NewClient(addr)

	got, err := client.Resolve(context.Background(), "subject-1")
	require.NoError(t, err)
	require.Equal(t, pub, got)
}

func TestClientResolveFailsWhenUnreachable(t *testing.T) {
	client := pubkeysvc.NewClient("127.0.0.1:1")
	ctx, cancel := context.WithTimeout(context.Background(), 0)
	defer cancel()
	_, err := client.Resolve(ctx, "subject-1")
	require.Error(t, err)
}
