// Package txverify implements the Mutation Verifier (C1): decoding a
// signed mutation envelope and recovering its signer via secp256k1
// signature recovery, the way go-ethereum's crypto package does for
// transaction signatures.
package txverify

import (
	"crypto/ecdsa"
	"encoding/json"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	apperrors "chainstore.io/node/internal/pkg/errors"
	"chainstore.io/node/internal/mutation"
)

// Verifier decodes and cryptographically validates signed mutation
// payloads. It holds no state or configuration.
type Verifier struct{}

// New creates a Verifier.
func New() *Verifier {
	return &Verifier{}
}

// Verify decodes payload as a mutation.Envelope, recovers the signer
// address from signature, and returns the decoded envelope, signer
// address, and nonce.
func (v *Verifier) Verify(payload, signature []byte) (mutation.Envelope, common.Address, uint64, error) {
	var env mutation.Envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return mutation.Envelope{}, common.Address{}, 0, apperrors.MalformedPayload(err)
	}
	if env.Action == mutation.ActionUnknown || env.Action > mutation.ActionDeleteDocument {
		return mutation.Envelope{}, common.Address{}, 0, apperrors.UnknownAction(int32(env.Action))
	}

	signer, err := recoverSigner(payload, signature)
	if err != nil {
		return mutation.Envelope{}, common.Address{}, 0, apperrors.InvalidSignature(err)
	}

	return env, signer, env.Nonce, nil
}

// VerifyAdmin recovers the signer of an admin payload and decodes it as
// a flat string-keyed config map, used by the Service Surface's Setup
// operation.
func (v *Verifier) VerifyAdmin(payload, signature []byte) (common.Address, map[string]any, error) {
	signer, err := recoverSigner(payload, signature)
	if err != nil {
		return common.Address{}, nil, apperrors.InvalidSignature(err)
	}

	var cfg map[string]any
	if err := json.Unmarshal(payload, &cfg); err != nil {
		return common.Address{}, nil, apperrors.MalformedPayload(err)
	}
	return signer, cfg, nil
}

// DecodeDocIDMap interprets the document-id assignments present in a
// mutation header, encoded as a JSON array of arrays of ids
// (one row per document touched by the mutation, per collection order).
func DecodeDocIDMap(raw string) ([][]uint64, error) {
	if raw == "" {
		return nil, nil
	}
	var out [][]uint64
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, apperrors.MalformedPayload(err)
	}
	return out, nil
}

// recoverSigner recovers the address that produced signature over the
// plain keccak256 digest of payload; no personal-message prefix is
// applied before hashing.
func recoverSigner(payload, signature []byte) (common.Address, error) {
	digest := crypto.Keccak256Hash(payload)

	sig := signature
	if len(sig) == 65 && (sig[64] == 27 || sig[64] == 28) {
		sig = append([]byte(nil), sig...)
		sig[64] -= 27
	}

	pub, err := crypto.SigToPub(digest.Bytes(), sig)
	if err != nil {
		return common.Address{}, err
	}
	return pubkeyToAddress(pub), nil
}

func pubkeyToAddress(pub *ecdsa.PublicKey) common.Address {
	return crypto.PubkeyToAddress(*pub)
}
