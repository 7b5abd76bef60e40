// Package service implements the Service Surface (C7): the node's
// externally-facing operations, as plain Go methods returning
// (Response, error) so a future gRPC/REST skin can map errors 1:1 onto
// wire statuses without this package knowing about transport.
package service

import (
	"context"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	apperrors "chainstore.io/node/internal/pkg/errors"
	"chainstore.io/node/internal/indexer"
	"chainstore.io/node/internal/keystore"
	"chainstore.io/node/internal/pkg/logger"
	"chainstore.io/node/internal/registry"
	"chainstore.io/node/internal/storage"
	"chainstore.io/node/internal/txverify"

	"go.uber.org/zap"
)

const nodeVersion = "0.1.0"

// ContractSyncStatus is one registered listener's observable progress.
type ContractSyncStatus = registry.Status

// SetupResult is Setup's response shape.
type SetupResult struct {
	Code int32
	Msg  string
}

// SystemStatus is GetSystemStatus's response shape.
type SystemStatus struct {
	EvmAccount string
	NodeURL    string
	AdminAddr  string
	NetworkID  uint64
	HasInited  bool
	Version    string
}

// QueryResult is RunQuery's response shape.
type QueryResult struct {
	Documents [][]byte
	Count     int
}

// Surface wires the Service Surface's four operations to the Block Sync
// Engine, the Event Processor Registry, the persistence adapters, and
// the key store.
type Surface struct {
	engine     *indexer.Engine
	registry   *registry.Registry
	verifier   *txverify.Verifier
	documents  storage.DocumentStore
	audit      storage.AuditStore
	keys       *keystore.Store
	adminAddr  common.Address
	evmNodeURL string
}

// New builds a Surface.
func New(engine *indexer.Engine, reg *registry.Registry, verifier *txverify.Verifier,
	documents storage.DocumentStore, audit storage.AuditStore, keys *keystore.Store, adminAddr, evmNodeURL string) *Surface {
	return &Surface{
		engine:     engine,
		registry:   reg,
		verifier:   verifier,
		documents:  documents,
		audit:      audit,
		keys:       keys,
		adminAddr:  common.HexToAddress(adminAddr),
		evmNodeURL: evmNodeURL,
	}
}

// recordAudit appends an audit_log entry for an admin-signed operation. A
// failure to record is logged, not propagated: the operation it describes
// has already succeeded and must not be rolled back over a logging fault.
func (s *Surface) recordAudit(ctx context.Context, action, actor string, details map[string]any) {
	if s.audit == nil {
		return
	}
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	if err := s.audit.RecordAction(ctx, "audit-"+id.String(), action, actor, details); err != nil {
		logger.Warn("failed to record audit log entry", zap.String("action", action), zap.Error(err))
	}
}

// GetContractSyncStatus returns a snapshot of every registered listener.
func (s *Surface) GetContractSyncStatus(ctx context.Context) ([]ContractSyncStatus, error) {
	return s.registry.SnapshotStatus(), nil
}

// Setup verifies the admin signature over payload and, on success,
// atomically replaces the engine's network id with the payload's
// "network" field.
func (s *Surface) Setup(ctx context.Context, payload, signature []byte) (SetupResult, error) {
	signer, cfg, err := s.verifier.VerifyAdmin(payload, signature)
	if err != nil {
		return SetupResult{}, err
	}
	if signer != s.adminAddr {
		return SetupResult{}, apperrors.PermissionDenied("setup must be signed by the node admin")
	}

	network, ok := cfg["network"]
	if !ok {
		return SetupResult{}, apperrors.InvalidArgument("setup payload missing \"network\" field")
	}
	networkID, ok := toUint64(network)
	if !ok {
		return SetupResult{}, apperrors.InvalidArgument("setup payload \"network\" field is not a number")
	}

	s.engine.SetNetworkID(networkID)
	s.recordAudit(ctx, "setup", signer.Hex(), map[string]any{"network_id": networkID})
	return SetupResult{Code: 0, Msg: "ok"}, nil
}

// GetSystemStatus loads (or creates, if absent) the node's EVM wallet and
// returns its address plus static node metadata.
func (s *Surface) GetSystemStatus(ctx context.Context) (SystemStatus, error) {
	hasInited := s.keys.HasKey("evm")
	key, err := s.keys.GetKey("evm")
	if err != nil {
		return SystemStatus{}, apperrors.StorageError(err)
	}

	return SystemStatus{
		EvmAccount: keystore.AddressFromKey(key).Hex(),
		NodeURL:    s.evmNodeURL,
		AdminAddr:  s.adminAddr.Hex(),
		NetworkID:  s.engine.NetworkID(),
		HasInited:  hasInited,
		Version:    nodeVersion,
	}, nil
}

// RunQuery delegates to the document store facade.
func (s *Surface) RunQuery(ctx context.Context, db, collection, query string) (QueryResult, error) {
	if strings.TrimSpace(query) == "" {
		return QueryResult{}, apperrors.InvalidArgument("query must not be empty")
	}
	if !common.IsHexAddress(db) {
		return QueryResult{}, apperrors.InvalidArgument("db address is malformed")
	}

	docs, count, err := s.documents.QueryDocs(ctx, db, collection, query)
	if err != nil {
		return QueryResult{}, apperrors.StorageError(err)
	}

	out := make([][]byte, len(docs))
	for i, d := range docs {
		out[i] = d
	}
	return QueryResult{Documents: out, Count: count}, nil
}

func toUint64(v any) (uint64, bool) {
	switch n := v.(type) {
	case float64:
		if n < 0 {
			return 0, false
		}
		return uint64(n), true
	case int:
		if n < 0 {
			return 0, false
		}
		return uint64(n), true
	case uint64:
		return n, true
	default:
		return 0, false
	}
}
