package keystore

import (
	"testing"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"
)

func TestGetKey_GeneratesIfAbsent(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir)
	require.NoError(t, err)

	require.False(t, s.HasKey("evm"), "expected no key before first GetKey")

	key, err := s.GetKey("evm")
	require.NoError(t, err)
	require.NotNil(t, key)
	require.True(t, s.HasKey("evm"), "expected key to exist after GetKey")
}

func TestGetKey_LoadsExisting(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir)
	require.NoError(t, err)

	first, err := s.GetKey("evm")
	require.NoError(t, err)

	second, err := s.GetKey("evm")
	require.NoError(t, err)

	require.NotNil(t, crypto.FromECDSA(first))
	require.NotNil(t, crypto.FromECDSA(second))

	firstAddr := crypto.PubkeyToAddress(first.PublicKey)
	secondAddr := crypto.PubkeyToAddress(second.PublicKey)
	require.Equal(t, firstAddr, secondAddr, "expected same key across calls")
}
