// Package mutation defines the wire and storage shape of a signed
// document-store mutation and the block/order watermark it is ordered by.
package mutation

import "encoding/json"

// ActionKind is the closed enumeration of mutation actions.
type ActionKind int32

const (
	ActionUnknown ActionKind = iota
	ActionCreateDatabase
	ActionCreateCollection
	ActionAddDocument
	ActionUpdateDocument
	ActionDeleteDocument
)

// String renders the action kind for logging.
func (k ActionKind) String() string {
	switch k {
	case ActionCreateDatabase:
		return "create_database"
	case ActionCreateCollection:
		return "create_collection"
	case ActionAddDocument:
		return "add_document"
	case ActionUpdateDocument:
		return "update_document"
	case ActionDeleteDocument:
		return "delete_document"
	default:
		return "unknown"
	}
}

// Header carries the fields the primary node stamps onto every mutation:
// its position in the global (block, order) stream, the document ids it
// assigned, and the network it belongs to.
type Header struct {
	Block     uint64
	Order     uint32
	DocIDsMap [][]uint64
	NetworkID uint64
}

// Envelope is the decoded JSON payload carried inside a signed mutation:
// an action code plus action-specific fields.
type Envelope struct {
	Action ActionKind      `json:"action"`
	Nonce  uint64          `json:"nonce"`
	Body   json.RawMessage `json:"body"`
}

// Mutation is an immutable signed record as it is fetched from the
// primary node or replayed from the blob store.
type Mutation struct {
	Payload   []byte
	Signature []byte
	Header    Header
	Action    ActionKind
	Body      json.RawMessage
	Signer    string
	Nonce     uint64
}

// Wrapper is the shape returned by the primary node's block-range API:
// a mutation header plus its opaque signed body.
type Wrapper struct {
	Header    Header
	Payload   []byte
	Signature []byte
}

// CreateDatabaseBody is the action-specific payload for ActionCreateDatabase.
type CreateDatabaseBody struct {
	EvmNodeURL   string   `json:"evm_node_url"`
	ContractAddr string   `json:"contract_addr"`
	ABI          string   `json:"abi"`
	EventNames   []string `json:"event_names"`
}

// AddDocumentBody is the action-specific payload for ActionAddDocument.
type AddDocumentBody struct {
	DB         string            `json:"db"`
	Collection string            `json:"collection"`
	Documents  []json.RawMessage `json:"documents"`
}

// UpdateDocumentBody is the action-specific payload for ActionUpdateDocument.
type UpdateDocumentBody struct {
	DB         string          `json:"db"`
	Collection string          `json:"collection"`
	DocID      uint64          `json:"doc_id"`
	Document   json.RawMessage `json:"document"`
}

// DeleteDocumentBody is the action-specific payload for ActionDeleteDocument.
type DeleteDocumentBody struct {
	DB         string `json:"db"`
	Collection string `json:"collection"`
	DocID      uint64 `json:"doc_id"`
}

// CreateCollectionBody is the action-specific payload for ActionCreateCollection.
type CreateCollectionBody struct {
	DB   string `json:"db"`
	Name string `json:"name"`
}

// BlockState is the high-water mark pair marking the last mutation the
// indexer has applied.
type BlockState struct {
	Block uint64
	Order uint32
}

// Less reports whether bs sorts strictly before other in (block, order)
// ascending order.
func (bs BlockState) Less(other BlockState) bool {
	if bs.Block != other.Block {
		return bs.Block < other.Block
	}
	return bs.Order < other.Order
}

// EventDatabaseDescriptor describes a user database bound to an on-chain
// contract, as recorded by an ActionCreateDatabase mutation.
type EventDatabaseDescriptor struct {
	DBAddress    string
	EvmNodeURL   string
	ABI          string
	ContractAddr string
	EventNames   []string
	StartBlock   uint64
}

// RollupRecord is appended once per successful rollup tick.
type RollupRecord struct {
	StartBlock      uint64
	EndBlock        uint64
	RawSize         uint64
	CompressedSize  uint64
	MutationCount   uint64
	BlobID          string
	BlobCost        uint64
	EvmTx           string
	EvmCost         uint64
	WallTimeUnix    int64
	ProcessedSeconds float64
}

// GcRecord is appended once per successful GC pass.
type GcRecord struct {
	StartBlock       uint64
	EndBlock         uint64
	DataSize         uint64
	WallTimeUnix     int64
	ProcessedSeconds float64
}

// PendingRollupCounters are the batcher's live, non-durable observability
// counters. Reset every rollup tick.
type PendingRollupCounters struct {
	PendingStartBlock uint64
	PendingEndBlock   uint64
	PendingMutations  uint64
	PendingDataSize   uint64
}
