package rollup

import (
	"bytes"
	"context"
	"encoding/hex"
	"fmt"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"golang.org/x/crypto/blake2b"
)

// UploadResult is what a successful blob upload reports back to the
// batcher for its RollupRecord measurements.
type UploadResult struct {
	BlobID         string
	BlobCost       uint64
	NumRows        uint64
	CompressedSize uint64
}

// BlobStore is the permanent, content-addressed blob store the rollup
// batcher writes to and the indexer's cold-recovery path reads from. An
// S3-compatible bucket stands in for the original's Arweave target.
type BlobStore interface {
	// Upload writes payload under a content-addressed key and returns its
	// id plus cost/row measurements. prevBlobID is carried as object
	// metadata to preserve the blob-chain link.
	Upload(ctx context.Context, prevBlobID string, startBlock, endBlock uint64, payload []byte, numRows uint64, networkID uint64) (UploadResult, error)

	// FetchBlob downloads the raw compressed payload previously stored
	// under blobID.
	FetchBlob(ctx context.Context, blobID string) ([]byte, error)
}

// S3Config configures the S3-compatible blob bucket.
type S3Config struct {
	Bucket       string
	Prefix       string
	Region       string
	Endpoint     string
	UsePathStyle bool
}

// S3BlobStore implements BlobStore over an S3-compatible bucket.
type S3BlobStore struct {
	client *s3.Client
	cfg    S3Config
}

// NewS3BlobStore loads AWS config via the default credential chain and
// builds an S3BlobStore, optionally pointed at a custom (S3-compatible)
// endpoint for providers like MinIO or Cloudflare R2.
func NewS3BlobStore(ctx context.Context, cfg S3Config) (*S3BlobStore, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	var s3Opts []func(*s3.Options)
	if cfg.Endpoint != "" {
		endpoint := cfg.Endpoint
		s3Opts = append(s3Opts, func(o *s3.Options) { o.BaseEndpoint = &endpoint })
	}
	if cfg.UsePathStyle {
		s3Opts = append(s3Opts, func(o *s3.Options) { o.UsePathStyle = true })
	}

	return &S3BlobStore{client: s3.NewFromConfig(awsCfg, s3Opts...), cfg: cfg}, nil
}

// Upload stores payload under a blake2b-256 content-addressed key.
func (b *S3BlobStore) Upload(ctx context.Context, prevBlobID string, startBlock, endBlock uint64, payload []byte, numRows uint64, networkID uint64) (UploadResult, error) {
	sum := blake2b.Sum256(payload)
	blobID := hex.EncodeToString(sum[:])
	key := b.cfg.Prefix + blobID

	meta := map[string]string{
		"prev_blob_id": prevBlobID,
		"start_block":  strconv.FormatUint(startBlock, 10),
		"end_block":    strconv.FormatUint(endBlock, 10),
		"network_id":   strconv.FormatUint(networkID, 10),
	}

	_, err := b.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:   aws.String(b.cfg.Bucket),
		Key:      aws.String(key),
		Body:     bytes.NewReader(payload),
		Metadata: meta,
	})
	if err != nil {
		return UploadResult{}, fmt.Errorf("put blob %s: %w", blobID, err)
	}

	// A real permanent-storage backend (Arweave, Filecoin) reports back a
	// non-zero storage fee; the S3-compatible stand-in has none, so cost
	// is reported as zero and left for the contract-cost leg to carry the
	// economically meaningful number.
	return UploadResult{
		BlobID:         blobID,
		BlobCost:       0,
		NumRows:        numRows,
		CompressedSize: uint64(len(payload)),
	}, nil
}

// FetchBlob downloads and returns the raw compressed payload for blobID.
func (b *S3BlobStore) FetchBlob(ctx context.Context, blobID string) ([]byte, error) {
	key := b.cfg.Prefix + blobID
	out, err := b.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.cfg.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("get blob %s: %w", blobID, err)
	}
	defer out.Body.Close()

	buf := new(bytes.Buffer)
	if _, err := buf.ReadFrom(out.Body); err != nil {
		return nil, fmt.Errorf("read blob %s: %w", blobID, err)
	}
	return buf.Bytes(), nil
}
