package adaptive

import (
	"crypto/sha256"
	"fmt"
	"io"
	"os"

	"golang.org/x/crypto/hkdf"
)

// MinAuthKeySize is the smallest accepted authkey.
const MinAuthKeySize = 16

const keyInfo = "corosync cluster frame key v1"

// DeriveKey derives the cluster key from a shared secret and the cluster
// name.
func DeriveKey(secret []byte, clusterName string) ([]byte, error) {
	if len(secret) < MinAuthKeySize {
		return nil, fmt.Errorf("adaptive: authkey is %d bytes, need at least %d", len(secret), MinAuthKeySize)
	}
	r := hkdf.New(sha256.New, secret, []byte(clusterName), []byte(keyInfo))
	key := make([]byte, KeySize)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, err
	}
	return key, nil
}

// LoadKeyFile reads an authkey file and derives the cluster key from it.
// The file must not be readable by group or others.
func LoadKeyFile(path, clusterName string) ([]byte, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.Mode().Perm()&0o077 != 0 {
		return nil, fmt.Errorf("adaptive: authkey %s has mode %v, want 0600 or stricter", path, info.Mode().Perm())
	}
	secret, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return DeriveKey(secret, clusterName)
}
