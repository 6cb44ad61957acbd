package domain

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// DefaultDecimals is assumed for datatokens whose decimals read fails.
const DefaultDecimals = 18

// DatatokenDescriptor identifies a resolved datatoken contract.
// A descriptor is valid only when ParentNFT is non-zero: the backlink to
// the parent ERC-721 is what distinguishes a datatoken from an arbitrary
// ERC-20.
type DatatokenDescriptor struct {
	Address common.Address
	Name    string
	Symbol  string

	// ParentNFT is the ERC-721 contract the token grants access to.
	ParentNFT common.Address

	// InitialTokenAddress is set when the token was reached through a
	// factory contract: it holds the originally discovered candidate
	// address rather than the resolved member token.
	InitialTokenAddress common.Address

	// HasDispenser reports whether a dispenser is registered for the
	// token. Best-effort: a failed dispenser lookup leaves it false.
	HasDispenser bool
}

// Valid reports whether the descriptor carries a non-zero parent NFT.
func (d *DatatokenDescriptor) Valid() bool {
	return d.ParentNFT != (common.Address{})
}

// TokenHolding is a datatoken descriptor enriched with the wallet's live
// balance and the transfer log entries observed for the contract during
// the scanned window.
type TokenHolding struct {
	DatatokenDescriptor

	Balance      *big.Int      // raw balance in base units
	BalanceHuman string        // balance scaled by Decimals, for display
	Decimals     int           // token precision, DefaultDecimals on read failure
	Transfers    []TransferLog // window log entries touching this contract
}
