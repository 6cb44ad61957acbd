package eth

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"

	"datatoken-market/internal/domain"
	"datatoken-market/internal/observability"
)

// Backend is the subset of ethclient.Client the Client depends on.
// Tests substitute an in-process implementation.
type Backend interface {
	ChainID(ctx context.Context) (*big.Int, error)
	CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error)
	BlockNumber(ctx context.Context) (uint64, error)
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// Client implements ChainReader and Minter over a JSON-RPC backend.
type Client struct {
	backend Backend
	sender  TxSender
}

// ClientOption configures Client.
type ClientOption func(*Client)

// WithSender sets the transaction sender used for mint calls.
func WithSender(s TxSender) ClientOption {
	return func(c *Client) {
		c.sender = s
	}
}

// NewClient creates a Client over an existing backend.
func NewClient(backend Backend, opts ...ClientOption) *Client {
	c := &Client{backend: backend}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Dial connects to an Ethereum JSON-RPC endpoint.
func Dial(ctx context.Context, endpoint string, opts ...ClientOption) (*Client, error) {
	backend, err := ethclient.DialContext(ctx, endpoint)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", endpoint, err)
	}
	return NewClient(backend, opts...), nil
}

// ChainID returns the connected chain's id.
func (c *Client) ChainID(ctx context.Context) (*big.Int, error) {
	return c.backend.ChainID(ctx)
}

// CodeAt returns the deployed bytecode at addr in the latest block.
func (c *Client) CodeAt(ctx context.Context, addr common.Address) ([]byte, error) {
	return c.backend.CodeAt(ctx, addr, nil)
}

// BlockNumber returns the latest block number.
func (c *Client) BlockNumber(ctx context.Context) (uint64, error) {
	return c.backend.BlockNumber(ctx)
}

// FilterTransfers queries Transfer logs matching f and decodes them.
// Logs with a truncated topic set are skipped.
func (c *Client) FilterTransfers(ctx context.Context, f TransferFilter) ([]domain.TransferLog, error) {
	q := ethereum.FilterQuery{
		FromBlock: f.FromBlock,
		ToBlock:   f.ToBlock,
		Topics:    [][]common.Hash{{TransferTopic}, addrTopic(f.From), addrTopic(f.To)},
	}
	if f.Token != nil {
		q.Addresses = []common.Address{*f.Token}
	}

	start := time.Now()
	logs, err := c.backend.FilterLogs(ctx, q)
	observability.RecordRPCReadLatency("eth_getLogs", time.Since(start).Seconds())
	if err != nil {
		return nil, fmt.Errorf("filter transfer logs: %w", err)
	}

	out := make([]domain.TransferLog, 0, len(logs))
	for _, lg := range logs {
		if len(lg.Topics) < 3 {
			continue
		}
		out = append(out, domain.TransferLog{
			Contract:    lg.Address,
			From:        common.BytesToAddress(lg.Topics[1].Bytes()),
			To:          common.BytesToAddress(lg.Topics[2].Bytes()),
			Value:       new(big.Int).SetBytes(lg.Data),
			BlockNumber: lg.BlockNumber,
			TxHash:      lg.TxHash,
			LogIndex:    lg.Index,
		})
	}
	return out, nil
}

func addrTopic(a *common.Address) []common.Hash {
	if a == nil {
		return nil
	}
	return []common.Hash{common.BytesToHash(a.Bytes())}
}

// TokenName reads name() on token.
func (c *Client) TokenName(ctx context.Context, token common.Address) (string, error) {
	var name string
	if err := c.read(ctx, datatokenABI, token, "name", &name); err != nil {
		return "", err
	}
	return name, nil
}

// TokenSymbol reads symbol() on token.
func (c *Client) TokenSymbol(ctx context.Context, token common.Address) (string, error) {
	var symbol string
	if err := c.read(ctx, datatokenABI, token, "symbol", &symbol); err != nil {
		return "", err
	}
	return symbol, nil
}

// TokenDecimals reads decimals() on token.
func (c *Client) TokenDecimals(ctx context.Context, token common.Address) (uint8, error) {
	var decimals uint8
	if err := c.read(ctx, datatokenABI, token, "decimals", &decimals); err != nil {
		return 0, err
	}
	return decimals, nil
}

// BalanceOf reads balanceOf(owner) on token.
func (c *Client) BalanceOf(ctx context.Context, token, owner common.Address) (*big.Int, error) {
	var balance *big.Int
	if err := c.read(ctx, datatokenABI, token, "balanceOf", &balance, owner); err != nil {
		return nil, err
	}
	return balance, nil
}

// ParentNFTAddress reads getERC721Address() on token.
func (c *Client) ParentNFTAddress(ctx context.Context, token common.Address) (common.Address, error) {
	var parent common.Address
	if err := c.read(ctx, datatokenABI, token, "getERC721Address", &parent); err != nil {
		return common.Address{}, err
	}
	return parent, nil
}

// TokensList reads getTokensList() on a factory contract.
func (c *Client) TokensList(ctx context.Context, factory common.Address) ([]common.Address, error) {
	var tokens []common.Address
	if err := c.read(ctx, factoryABI, factory, "getTokensList", &tokens); err != nil {
		return nil, err
	}
	return tokens, nil
}

// Dispensers reads getDispensers() on token.
func (c *Client) Dispensers(ctx context.Context, token common.Address) ([]common.Address, error) {
	var dispensers []common.Address
	if err := c.read(ctx, datatokenABI, token, "getDispensers", &dispensers); err != nil {
		return nil, err
	}
	return dispensers, nil
}

// Mint issues mint(to, amount) on token through the configured sender.
func (c *Client) Mint(ctx context.Context, token, to common.Address, amount *big.Int) (common.Hash, error) {
	if c.sender == nil {
		return common.Hash{}, fmt.Errorf("mint: no transaction sender configured")
	}
	calldata, err := datatokenABI.Pack("mint", to, amount)
	if err != nil {
		return common.Hash{}, fmt.Errorf("pack mint: %w", err)
	}
	hash, err := c.sender.SendContractCall(ctx, token, calldata)
	if err != nil {
		return common.Hash{}, fmt.Errorf("send mint: %w", err)
	}
	return hash, nil
}

// read performs an eth_call for method and unpacks the single output into
// result, which must be a pointer to the Go type of the output.
func (c *Client) read(ctx context.Context, contractABI abi.ABI, addr common.Address, method string, result interface{}, args ...interface{}) error {
	calldata, err := contractABI.Pack(method, args...)
	if err != nil {
		return fmt.Errorf("pack %s: %w", method, err)
	}

	start := time.Now()
	out, err := c.backend.CallContract(ctx, ethereum.CallMsg{To: &addr, Data: calldata}, nil)
	observability.RecordRPCReadLatency(method, time.Since(start).Seconds())
	if err != nil {
		return fmt.Errorf("call %s on %s: %w", method, addr.Hex(), err)
	}
	if len(out) == 0 {
		return fmt.Errorf("call %s on %s: empty result", method, addr.Hex())
	}

	values, err := contractABI.Unpack(method, out)
	if err != nil {
		return fmt.Errorf("unpack %s: %w", method, err)
	}
	if len(values) != 1 {
		return fmt.Errorf("unpack %s: expected 1 output, got %d", method, len(values))
	}
	return assignOutput(method, values[0], result)
}

func assignOutput(method string, value, result interface{}) error {
	switch dst := result.(type) {
	case *string:
		v, ok := value.(string)
		if !ok {
			return fmt.Errorf("%s: unexpected output type %T", method, value)
		}
		*dst = v
	case *uint8:
		v, ok := value.(uint8)
		if !ok {
			return fmt.Errorf("%s: unexpected output type %T", method, value)
		}
		*dst = v
	case **big.Int:
		v, ok := value.(*big.Int)
		if !ok {
			return fmt.Errorf("%s: unexpected output type %T", method, value)
		}
		*dst = v
	case *common.Address:
		v, ok := value.(common.Address)
		if !ok {
			return fmt.Errorf("%s: unexpected output type %T", method, value)
		}
		*dst = v
	case *[]common.Address:
		v, ok := value.([]common.Address)
		if !ok {
			return fmt.Errorf("%s: unexpected output type %T", method, value)
		}
		*dst = v
	default:
		return fmt.Errorf("%s: unsupported output destination %T", method, result)
	}
	return nil
}
