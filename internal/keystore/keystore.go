// Package keystore provides an on-disk, directory-addressable key store:
// create a secp256k1 key under a logical name if absent, otherwise load
// it, the way go-ethereum's own keystore package manages account keys.
package keystore

import (
	"crypto/ecdsa"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// AddressFromKey derives the EVM address corresponding to key.
func AddressFromKey(key *ecdsa.PrivateKey) common.Address {
	return crypto.PubkeyToAddress(key.PublicKey)
}

// Store is an on-disk directory of raw secp256k1 private keys, one file
// per logical key name.
type Store struct {
	rootPath string
}

// New returns a Store rooted at rootPath, creating the directory if
// necessary.
func New(rootPath string) (*Store, error) {
	if err := os.MkdirAll(rootPath, 0o700); err != nil {
		return nil, fmt.Errorf("create key root: %w", err)
	}
	return &Store{rootPath: rootPath}, nil
}

func (s *Store) path(name string) string {
	return filepath.Join(s.rootPath, name+".key")
}

// HasKey reports whether a key file exists for name.
func (s *Store) HasKey(name string) bool {
	_, err := os.Stat(s.path(name))
	return err == nil
}

// GetKey loads the key for name, generating and persisting a new one if
// absent.
func (s *Store) GetKey(name string) (*ecdsa.PrivateKey, error) {
	if s.HasKey(name) {
		raw, err := os.ReadFile(s.path(name))
		if err != nil {
			return nil, fmt.Errorf("read key %q: %w", name, err)
		}
		key, err := crypto.ToECDSA(raw)
		if err != nil {
			return nil, fmt.Errorf("parse key %q: %w", name, err)
		}
		return key, nil
	}
	return s.generateAndWrite(name)
}

// WriteKey persists key under name, overwriting any existing file.
func (s *Store) WriteKey(name string, key *ecdsa.PrivateKey) error {
	return os.WriteFile(s.path(name), crypto.FromECDSA(key), 0o600)
}

func (s *Store) generateAndWrite(name string) (*ecdsa.PrivateKey, error) {
	key, err := crypto.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("generate key %q: %w", name, err)
	}
	if err := s.WriteKey(name, key); err != nil {
		return nil, fmt.Errorf("persist key %q: %w", name, err)
	}
	return key, nil
}
