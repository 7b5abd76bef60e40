package service

import (
	"context"

	apperrors "chainstore.io/node/internal/pkg/errors"
	"chainstore.io/node/internal/rollup"
)

// Admin exposes the supplemented system-config hot-reload operation: the
// original's broader SystemConfig swap, beyond the distilled Setup's
// single network_id field. It shares the admin-signature check with
// Setup but rotates the rollup batcher's whole client/threshold bundle
// atomically.
type Admin struct {
	surface *Surface
	batcher *rollup.Batcher
}

// NewAdmin builds an Admin surface bound to the same verifier/admin
// address as surface.
func NewAdmin(surface *Surface, batcher *rollup.Batcher) *Admin {
	return &Admin{surface: surface, batcher: batcher}
}

// UpdateSystemConfigRequest carries the admin-signed payload plus the new
// client handles to swap in. The clients themselves are constructed by
// the caller (composition root) from the decoded config's endpoints,
// since building an S3/EVM client is infrastructure, not policy.
type UpdateSystemConfigRequest struct {
	Payload   []byte
	Signature []byte
	Config    rollup.SystemConfig
	BlobStore rollup.BlobStore
	Contract  rollup.ContractClient
}

// UpdateSystemConfig verifies the admin signature, then atomically swaps
// the rollup batcher's configuration so a concurrent Process() tick never
// observes a mixed old/new (blob_store, contract) pair.
func (a *Admin) UpdateSystemConfig(ctx context.Context, req UpdateSystemConfigRequest) error {
	signer, _, err := a.surface.verifier.VerifyAdmin(req.Payload, req.Signature)
	if err != nil {
		return err
	}
	if signer != a.surface.adminAddr {
		return apperrors.PermissionDenied("update_system_config must be signed by the node admin")
	}
	if req.BlobStore == nil || req.Contract == nil {
		return apperrors.InvalidArgument("blob store and contract client are both required")
	}

	a.batcher.UpdateConfig(req.Config, req.BlobStore, req.Contract)
	a.surface.recordAudit(ctx, "update_system_config", signer.Hex(), map[string]any{
		"min_rollup_size":     req.Config.MinRollupSize,
		"min_gc_round_offset": req.Config.MinGcRoundOffset,
		"network_id":          req.Config.NetworkID,
		"contract_addr":       req.Config.ContractAddr,
	})
	return nil
}
