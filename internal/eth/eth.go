// Package eth provides read and mint access to datatoken contracts over an
// Ethereum JSON-RPC provider.
package eth

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"datatoken-market/internal/domain"
)

// TransferFilter selects ERC-20 Transfer logs.
// Nil fields are wildcards; a nil FromBlock means genesis and a nil
// ToBlock means the latest block.
type TransferFilter struct {
	Token     *common.Address // restrict to one emitting contract
	From      *common.Address // topic 1
	To        *common.Address // topic 2
	FromBlock *big.Int
	ToBlock   *big.Int
}

// ChainReader defines the read-only provider surface used by discovery
// and the share flow.
type ChainReader interface {
	// ChainID returns the connected chain's id.
	ChainID(ctx context.Context) (*big.Int, error)

	// CodeAt returns the deployed bytecode at addr (empty for EOAs).
	CodeAt(ctx context.Context, addr common.Address) ([]byte, error)

	// BlockNumber returns the latest block number.
	BlockNumber(ctx context.Context) (uint64, error)

	// FilterTransfers returns decoded Transfer logs matching the filter.
	FilterTransfers(ctx context.Context, f TransferFilter) ([]domain.TransferLog, error)

	// TokenName reads name() on an ERC-20-like contract.
	TokenName(ctx context.Context, token common.Address) (string, error)

	// TokenSymbol reads symbol().
	TokenSymbol(ctx context.Context, token common.Address) (string, error)

	// TokenDecimals reads decimals().
	TokenDecimals(ctx context.Context, token common.Address) (uint8, error)

	// BalanceOf reads balanceOf(owner) on token.
	BalanceOf(ctx context.Context, token, owner common.Address) (*big.Int, error)

	// ParentNFTAddress reads getERC721Address(), the datatoken backlink.
	ParentNFTAddress(ctx context.Context, token common.Address) (common.Address, error)

	// TokensList reads getTokensList() on a factory contract.
	TokensList(ctx context.Context, factory common.Address) ([]common.Address, error)

	// Dispensers reads getDispensers() on a datatoken.
	Dispensers(ctx context.Context, token common.Address) ([]common.Address, error)
}

// Minter issues datatoken mint transactions.
type Minter interface {
	// Mint issues mint(to, amount) on token and returns the tx hash.
	Mint(ctx context.Context, token, to common.Address, amount *big.Int) (common.Hash, error)
}

// TxSender submits a signed contract call. Key management and signing
// live outside this module; the embedding wallet supplies the sender.
type TxSender interface {
	SendContractCall(ctx context.Context, to common.Address, calldata []byte) (common.Hash, error)
}
