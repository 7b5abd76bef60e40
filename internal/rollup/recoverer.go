package rollup

import (
	"context"
	"fmt"

	"chainstore.io/node/internal/mutation"
	"chainstore.io/node/internal/storage"
)

// BlobFetcher is the read-side of BlobStore the recoverer needs: fetch a
// specific blob by id. S3BlobStore satisfies this directly.
type BlobFetcher interface {
	FetchBlob(ctx context.Context, blobID string) ([]byte, error)
}

// ArRecoverer replays every rollup blob whose end_block exceeds a given
// watermark by walking the rollup log forward from its first record,
// skipping records that end at or below the watermark and decoding each
// remaining blob's columnar batch. It satisfies indexer.BlobRecoverer
// structurally.
type ArRecoverer struct {
	rollups storage.RollupStore
	blobs   BlobFetcher
}

// NewArRecoverer builds an ArRecoverer over the node's rollup log and
// blob store.
func NewArRecoverer(rollups storage.RollupStore, blobs BlobFetcher) *ArRecoverer {
	return &ArRecoverer{rollups: rollups, blobs: blobs}
}

// RecoverSince decodes and concatenates the mutations of every rollup
// record whose end_block is greater than watermark, walking the
// contiguous rollup-record chain forward from its first record (start 0),
// so a record whose range contains watermark is included.
func (r *ArRecoverer) RecoverSince(ctx context.Context, watermark uint64) ([]mutation.Mutation, error) {
	record, err := r.rollups.GetRollupRecord(ctx, 0)
	if err != nil {
		return nil, err
	}

	var out []mutation.Mutation
	for record != nil {
		if record.EndBlock <= watermark {
			record, err = r.rollups.GetNextRollupRecord(ctx, record.StartBlock)
			if err != nil {
				return nil, err
			}
			continue
		}
		blob, err := r.blobs.FetchBlob(ctx, record.BlobID)
		if err != nil {
			return nil, fmt.Errorf("fetch blob %s: %w", record.BlobID, err)
		}
		muts, err := decodeBatch(blob)
		if err != nil {
			return nil, fmt.Errorf("decode blob %s: %w", record.BlobID, err)
		}
		out = append(out, muts...)

		record, err = r.rollups.GetNextRollupRecord(ctx, record.StartBlock)
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}
