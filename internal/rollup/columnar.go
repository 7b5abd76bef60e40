package rollup

import (
	"github.com/klauspost/compress/zstd"
	"github.com/vmihailenco/msgpack/v5"

	"chainstore.io/node/internal/mutation"
)

// columnarBatch is the struct-of-slices encoding of a contiguous mutation
// range: each field is a parallel slice indexed by mutation position,
// rather than an array of per-mutation structs, so repeated fields
// (actions, signers) compress well under zstd.
type columnarBatch struct {
	Blocks     []uint64
	Orders     []uint32
	DocIDsMaps [][][]uint64
	NetworkIDs []uint64
	Actions    []mutation.ActionKind
	Nonces     []uint64
	Signers    []string
	Bodies     [][]byte
	Payloads   [][]byte
	Signatures [][]byte
}

func newColumnarBatch(muts []mutation.Mutation) columnarBatch {
	b := columnarBatch{
		Blocks:     make([]uint64, len(muts)),
		Orders:     make([]uint32, len(muts)),
		DocIDsMaps: make([][][]uint64, len(muts)),
		NetworkIDs: make([]uint64, len(muts)),
		Actions:    make([]mutation.ActionKind, len(muts)),
		Nonces:     make([]uint64, len(muts)),
		Signers:    make([]string, len(muts)),
		Bodies:     make([][]byte, len(muts)),
		Payloads:   make([][]byte, len(muts)),
		Signatures: make([][]byte, len(muts)),
	}
	for i, m := range muts {
		b.Blocks[i] = m.Header.Block
		b.Orders[i] = m.Header.Order
		b.DocIDsMaps[i] = m.Header.DocIDsMap
		b.NetworkIDs[i] = m.Header.NetworkID
		b.Actions[i] = m.Action
		b.Nonces[i] = m.Nonce
		b.Signers[i] = m.Signer
		b.Bodies[i] = m.Body
		b.Payloads[i] = m.Payload
		b.Signatures[i] = m.Signature
	}
	return b
}

func (b columnarBatch) mutations() []mutation.Mutation {
	out := make([]mutation.Mutation, len(b.Blocks))
	for i := range b.Blocks {
		out[i] = mutation.Mutation{
			Payload:   b.Payloads[i],
			Signature: b.Signatures[i],
			Header:    mutation.Header{Block: b.Blocks[i], Order: b.Orders[i], DocIDsMap: b.DocIDsMaps[i], NetworkID: b.NetworkIDs[i]},
			Action:    b.Actions[i],
			Body:      b.Bodies[i],
			Signer:    b.Signers[i],
			Nonce:     b.Nonces[i],
		}
	}
	return out
}

// encodeBatch msgpack-encodes muts column-wise and zstd-compresses the
// result. rawSize is the pre-compression encoded length; the returned
// bytes are the compressed payload.
func encodeBatch(muts []mutation.Mutation) (compressed []byte, rawSize, compressedSize uint64, err error) {
	raw, err := msgpack.Marshal(newColumnarBatch(muts))
	if err != nil {
		return nil, 0, 0, err
	}

	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, 0, 0, err
	}
	defer enc.Close()

	out := enc.EncodeAll(raw, make([]byte, 0, len(raw)))
	return out, uint64(len(raw)), uint64(len(out)), nil
}

// decodeBatch reverses encodeBatch: zstd-decompresses then msgpack-decodes
// the columnar batch, used by recover_from_ar to replay a rollup blob.
func decodeBatch(compressed []byte) ([]mutation.Mutation, error) {
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, err
	}
	defer dec.Close()

	raw, err := dec.DecodeAll(compressed, nil)
	if err != nil {
		return nil, err
	}

	var b columnarBatch
	if err := msgpack.Unmarshal(raw, &b); err != nil {
		return nil, err
	}
	return b.mutations(), nil
}
