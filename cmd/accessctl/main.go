// Command accessctl is a thin client for a running accessd's admin
// protocol, matching cmd/nhb-cli's flat os.Args subcommand dispatch rather
// than adopting a CLI framework.
package main

import (
	"bufio"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net"
	"os"

	"accessd/crypto"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	addr := envOr("ACCESSCTL_ADDR", "127.0.0.1:7401")
	args := os.Args[2:]

	var err error
	switch os.Args[1] {
	case "admit":
		err = cmdAdmit(addr, args)
	case "get":
		err = cmdSimple(addr, "get", args)
	case "has":
		err = cmdSimple(addr, "has", args)
	case "remove":
		err = cmdSimple(addr, "remove", args)
	case "decide":
		err = cmdDecide(addr, args)
	case "keygen":
		err = cmdKeygen()
	default:
		usage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "accessctl:", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: accessctl <admit|get|has|remove|decide|keygen> [args]")
	fmt.Fprintln(os.Stderr, "  admit  <subject_id> <envelope_hex>")
	fmt.Fprintln(os.Stderr, "  get    <policy_id_hex>")
	fmt.Fprintln(os.Stderr, "  has    <policy_id_hex>")
	fmt.Fprintln(os.Stderr, "  remove <policy_id_hex>")
	fmt.Fprintln(os.Stderr, "  decide <request_json>")
	fmt.Fprintln(os.Stderr, "  keygen")
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func sendRequest(addr string, line string) (string, error) {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return "", fmt.Errorf("dial %s: %w", addr, err)
	}
	defer conn.Close()

	if _, err := fmt.Fprintln(conn, line); err != nil {
		return "", err
	}
	reply, err := bufio.NewReader(conn).ReadString('\n')
	if err != nil {
		return "", err
	}
	return reply, nil
}

func cmdAdmit(addr string, args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("admit requires <subject_id> <envelope_hex>")
	}
	line := fmt.Sprintf(`{"op":"admit","subject_id":%q,"envelope_hex":%q}`, args[0], args[1])
	reply, err := sendRequest(addr, line)
	if err != nil {
		return err
	}
	fmt.Print(reply)
	return nil
}

func cmdSimple(addr, op string, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("%s requires <policy_id_hex>", op)
	}
	line := fmt.Sprintf(`{"op":%q,"policy_id_hex":%q}`, op, args[0])
	reply, err := sendRequest(addr, line)
	if err != nil {
		return err
	}
	fmt.Print(reply)
	return nil
}

func cmdDecide(addr string, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("decide requires <request_json>")
	}
	escaped, err := jsonString(args[0])
	if err != nil {
		return err
	}
	line := fmt.Sprintf(`{"op":"decide","request":%s}`, escaped)
	reply, err := sendRequest(addr, line)
	if err != nil {
		return err
	}
	fmt.Print(reply)
	return nil
}

func jsonString(raw string) (string, error) {
	encoded, err := json.Marshal(raw)
	if err != nil {
		return "", err
	}
	return string(encoded), nil
}

func cmdKeygen() error {
	pub, sk, err := crypto.GenerateKeypair()
	if err != nil {
		return err
	}
	fmt.Printf("public_key: %s\n", hex.EncodeToString(pub))
	fmt.Printf("private_key: %s\n", hex.EncodeToString(sk))
	return nil
}
