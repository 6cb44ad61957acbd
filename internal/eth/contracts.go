package eth

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// TransferTopic is the keccak256 hash of Transfer(address,address,uint256).
var TransferTopic = common.HexToHash("0xddf252ad1be2c89b69c2b068fc378daa952ba7f163c4a11628f55a4df523b3ef")

// Minimal ABI fragments for the contract surfaces this module touches.
// Datatokens expose the ERC-20 read set plus getERC721Address and
// getDispensers; factories expose getTokensList.
const (
	datatokenABIJSON = `[
		{"type":"function","name":"name","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"string"}]},
		{"type":"function","name":"symbol","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"string"}]},
		{"type":"function","name":"decimals","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint8"}]},
		{"type":"function","name":"balanceOf","stateMutability":"view","inputs":[{"name":"account","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
		{"type":"function","name":"getERC721Address","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"address"}]},
		{"type":"function","name":"getDispensers","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"address[]"}]},
		{"type":"function","name":"mint","stateMutability":"nonpayable","inputs":[{"name":"account","type":"address"},{"name":"value","type":"uint256"}],"outputs":[]}
	]`

	factoryABIJSON = `[
		{"type":"function","name":"getTokensList","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"address[]"}]}
	]`
)

var (
	datatokenABI = mustParseABI(datatokenABIJSON)
	factoryABI   = mustParseABI(factoryABIJSON)
)

func mustParseABI(s string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(s))
	if err != nil {
		panic("eth: invalid embedded ABI: " + err.Error())
	}
	return parsed
}
