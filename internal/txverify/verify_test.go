package txverify

import (
	"encoding/json"
	"testing"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"

	"chainstore.io/node/internal/mutation"
)

func signPayload(t *testing.T, payload []byte) ([]byte, string) {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	digest := crypto.Keccak256Hash(payload)
	sig, err := crypto.Sign(digest.Bytes(), key)
	require.NoError(t, err)
	addr := crypto.PubkeyToAddress(key.PublicKey).Hex()
	return sig, addr
}

func TestVerify_ValidSignature(t *testing.T) {
	env := mutation.Envelope{Action: mutation.ActionAddDocument, Nonce: 5, Body: json.RawMessage(`{}`)}
	payload, err := json.Marshal(env)
	require.NoError(t, err)
	sig, wantAddr := signPayload(t, payload)

	v := New()
	decoded, signer, nonce, err := v.Verify(payload, sig)
	require.NoError(t, err)
	require.Equal(t, mutation.ActionAddDocument, decoded.Action)
	require.EqualValues(t, 5, nonce)
	require.Equal(t, wantAddr, signer.Hex())
}

func TestVerify_MalformedPayload(t *testing.T) {
	sig, _ := signPayload(t, []byte("not json"))
	v := New()
	_, _, _, err := v.Verify([]byte("not json"), sig)
	require.Error(t, err)
}

func TestVerify_UnknownAction(t *testing.T) {
	env := mutation.Envelope{Action: mutation.ActionKind(99)}
	payload, _ := json.Marshal(env)
	sig, _ := signPayload(t, payload)

	v := New()
	_, _, _, err := v.Verify(payload, sig)
	require.Error(t, err)
}

func TestVerify_InvalidSignature(t *testing.T) {
	env := mutation.Envelope{Action: mutation.ActionAddDocument}
	payload, _ := json.Marshal(env)

	v := New()
	_, _, _, err := v.Verify(payload, []byte("not a signature"))
	require.Error(t, err)
}

func TestDecodeDocIDMap(t *testing.T) {
	got, err := DecodeDocIDMap(`[[1,2],[3]]`)
	require.NoError(t, err)
	want := [][]uint64{{1, 2}, {3}}
	require.Equal(t, want, got)
}

func TestDecodeDocIDMap_Empty(t *testing.T) {
	got, err := DecodeDocIDMap("")
	require.NoError(t, err)
	require.Nil(t, got)
}
