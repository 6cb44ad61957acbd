package domain

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// TransferLog is a decoded ERC-20 Transfer event.
type TransferLog struct {
	Contract    common.Address // emitting token contract
	From        common.Address
	To          common.Address
	Value       *big.Int
	BlockNumber uint64
	TxHash      common.Hash
	LogIndex    uint
}
