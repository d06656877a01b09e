package crypto

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// SaveModuleKey persists the PAP module's Ed25519 private key as hex text at
// path, so a restarted process keeps signing under the same identity instead
// of invalidating every previously re-signed record. Writes are staged to a
// temp file in the same directory and atomically renamed into place, the
// same crash-safety idiom the source's Ethereum-keystore writer used.
func SaveModuleKey(path string, sk PrivateKey) error {
	if len(sk) != PrivateKeyLen {
		return errors.New("crypto: private key has wrong length")
	}
	if path == "" {
		return errors.New("crypto: empty keystore path")
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("crypto: create keystore dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "modulekey-")
	if err != nil {
		return fmt.Errorf("crypto: stage keystore file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.WriteString(hex.EncodeToString(sk)); err != nil {
		tmp.Close()
		return fmt.Errorf("crypto: write keystore file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("crypto: close keystore file: %w", err)
	}
	if err := os.Chmod(tmpPath, 0o600); err != nil {
		return fmt.Errorf("crypto: chmod keystore file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("crypto: install keystore file: %w", err)
	}
	return nil
}

// LoadModuleKey reads back a key written by SaveModuleKey.
func LoadModuleKey(path string) (PrivateKey, error) {
	if path == "" {
		return nil, errors.New("crypto: empty keystore path")
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("crypto: read keystore file: %w", err)
	}
	sk, err := hex.DecodeString(string(raw))
	if err != nil {
		return nil, fmt.Errorf("crypto: decode keystore file: %w", err)
	}
	if len(sk) != PrivateKeyLen {
		return nil, errors.New("crypto: keystore file has wrong key length")
	}
	return PrivateKey(sk), nil
}
