package registry

import (
	"context"

	"github.com/ethereum/go-ethereum/ethclient"
)

// EthDialer dials real EVM JSON-RPC endpoints via go-ethereum's ethclient.
type EthDialer struct{}

// Dial connects to evmNodeURL and returns the client as a ContractClient.
func (EthDialer) Dial(ctx context.Context, evmNodeURL string) (ContractClient, error) {
	return ethclient.DialContext(ctx, evmNodeURL)
}
