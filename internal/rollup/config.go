package rollup

// rolloutConfig groups the batcher's two external client handles plus the
// scalar settings that gate a rollup tick. Both clients must be present
// for process() to run; grouping them into one struct swapped atomically
// (see Batcher.clients, an atomic.Pointer) guarantees a reader never
// observes one updated client paired with the other's stale value.
type rolloutConfig struct {
	BlobStore BlobStore
	Contract  ContractClient

	MinRollupSize    uint64
	MinGcRoundOffset uint64
	ContractAddr     string
	NetworkID        uint64
}

// SystemConfig is the admin-facing configuration the Service Surface's
// Admin.UpdateSystemConfig operation writes through to the batcher
// (Setup changes only the engine's network id).
// The tick cadence itself (rollup_interval / rollup_max_interval) is a
// River periodic-job schedule fixed at startup, not part of this
// hot-reloadable bundle.
type SystemConfig struct {
	MinRollupSize    uint64
	MinGcRoundOffset uint64
	NetworkID        uint64
	ContractAddr     string
}
