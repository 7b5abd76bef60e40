package rollup

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
)

// CommitResult is what a successful on-chain commit reports back to the
// batcher for its RollupRecord measurements.
type CommitResult struct {
	TxHash  string
	GasCost uint64
}

// ContractClient commits a rollup step on-chain.
type ContractClient interface {
	// UpdateRollupStep calls the rollup contract's update_rollup_step
	// method with the latest blob id, returning gas cost and tx hash.
	UpdateRollupStep(ctx context.Context, blobID string, networkID uint64) (CommitResult, error)
}

// rollupStepABI is the minimal ABI fragment for update_rollup_step(string,uint64).
const rollupStepABI = `[{"type":"function","name":"update_rollup_step","inputs":[{"name":"blob_id","type":"string"},{"name":"network","type":"uint64"}],"outputs":[],"stateMutability":"nonpayable"}]`

// EthContractClient wraps go-ethereum's bind.BoundContract to call
// update_rollup_step on a deployed rollup contract.
type EthContractClient struct {
	bound     *bind.BoundContract
	signerTxn *bind.TransactOpts
}

// NewEthContractClient builds an EthContractClient bound to contractAddr,
// signing transactions with signer.
func NewEthContractClient(backend bind.ContractBackend, contractAddr common.Address, signer *bind.TransactOpts) (*EthContractClient, error) {
	parsed, err := abi.JSON(strings.NewReader(rollupStepABI))
	if err != nil {
		return nil, fmt.Errorf("parse rollup step abi: %w", err)
	}
	bound := bind.NewBoundContract(contractAddr, parsed, backend, backend, backend)
	return &EthContractClient{bound: bound, signerTxn: signer}, nil
}

// UpdateRollupStep submits the transaction and reports its hash and the
// gas*price cost measured at submission time.
func (c *EthContractClient) UpdateRollupStep(ctx context.Context, blobID string, networkID uint64) (CommitResult, error) {
	tx, err := c.bound.Transact(c.signerTxn, "update_rollup_step", blobID, networkID)
	if err != nil {
		return CommitResult{}, fmt.Errorf("update_rollup_step: %w", err)
	}

	var gasCost uint64
	if gasPrice := tx.GasPrice(); gasPrice != nil {
		cost := new(big.Int).Mul(gasPrice, new(big.Int).SetUint64(tx.Gas()))
		gasCost = cost.Uint64()
	}

	return CommitResult{TxHash: tx.Hash().Hex(), GasCost: gasCost}, nil
}
