// Package stub provides an in-memory eth.ChainReader and eth.Minter for
// tests.
package stub

import (
	"context"
	"errors"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"datatoken-market/internal/domain"
	"datatoken-market/internal/eth"
)

// ErrNoContract mimics a call against an address without the probed
// function.
var ErrNoContract = errors.New("execution reverted")

// Token is a stubbed datatoken contract.
type Token struct {
	Name       string
	Symbol     string
	Decimals   uint8
	Parent     common.Address // zero means no ERC-721 backlink
	Dispensers []common.Address
	Balances   map[common.Address]*big.Int

	// BalanceErr, when set, fails every BalanceOf call on the token.
	BalanceErr error
	// DispensersErr, when set, fails the dispenser lookup.
	DispensersErr error
}

// MintCall records one Mint invocation.
type MintCall struct {
	Token  common.Address
	To     common.Address
	Amount *big.Int
}

// Chain implements eth.ChainReader and eth.Minter over in-memory state.
type Chain struct {
	mu sync.Mutex

	ID        *big.Int
	Head      uint64
	Code      map[common.Address][]byte
	Tokens    map[common.Address]*Token
	Factories map[common.Address][]common.Address
	Logs      []domain.TransferLog

	// FilterErr, when set, fails every FilterTransfers call.
	FilterErr error
	// MintErr, when set, fails every Mint call.
	MintErr error

	// Calls counts invocations by method name.
	Calls map[string]int

	// Mints records successful Mint invocations.
	Mints []MintCall
}

// NewChain creates an empty stub chain.
func NewChain() *Chain {
	return &Chain{
		ID:        big.NewInt(1),
		Code:      make(map[common.Address][]byte),
		Tokens:    make(map[common.Address]*Token),
		Factories: make(map[common.Address][]common.Address),
		Calls:     make(map[string]int),
	}
}

// AddToken registers a token with deployed code.
func (c *Chain) AddToken(addr common.Address, t *Token) {
	if t.Balances == nil {
		t.Balances = make(map[common.Address]*big.Int)
	}
	c.Tokens[addr] = t
	c.Code[addr] = []byte{0x60, 0x80}
}

// AddFactory registers a factory with deployed code and member tokens.
func (c *Chain) AddFactory(addr common.Address, members []common.Address) {
	c.Factories[addr] = members
	c.Code[addr] = []byte{0x60, 0x80}
}

// AddLog appends a transfer log entry.
func (c *Chain) AddLog(lg domain.TransferLog) {
	c.Logs = append(c.Logs, lg)
}

func (c *Chain) record(method string) {
	c.mu.Lock()
	c.Calls[method]++
	c.mu.Unlock()
}

// CallCount returns how many times method was invoked.
func (c *Chain) CallCount(method string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Calls[method]
}

// ChainID returns the stubbed chain id.
func (c *Chain) ChainID(_ context.Context) (*big.Int, error) {
	c.record("ChainID")
	return c.ID, nil
}

// CodeAt returns registered code, empty when absent.
func (c *Chain) CodeAt(_ context.Context, addr common.Address) ([]byte, error) {
	c.record("CodeAt")
	return c.Code[addr], nil
}

// BlockNumber returns the stubbed head block.
func (c *Chain) BlockNumber(_ context.Context) (uint64, error) {
	c.record("BlockNumber")
	return c.Head, nil
}

// FilterTransfers scans the registered logs with the filter semantics of
// the real client.
func (c *Chain) FilterTransfers(_ context.Context, f eth.TransferFilter) ([]domain.TransferLog, error) {
	c.record("FilterTransfers")
	if c.FilterErr != nil {
		return nil, c.FilterErr
	}

	var out []domain.TransferLog
	for _, lg := range c.Logs {
		if f.Token != nil && lg.Contract != *f.Token {
			continue
		}
		if f.From != nil && lg.From != *f.From {
			continue
		}
		if f.To != nil && lg.To != *f.To {
			continue
		}
		if f.FromBlock != nil && lg.BlockNumber < f.FromBlock.Uint64() {
			continue
		}
		if f.ToBlock != nil && lg.BlockNumber > f.ToBlock.Uint64() {
			continue
		}
		out = append(out, lg)
	}
	return out, nil
}

func (c *Chain) token(addr common.Address) (*Token, error) {
	t, ok := c.Tokens[addr]
	if !ok {
		return nil, ErrNoContract
	}
	return t, nil
}

// TokenName reads the stubbed name.
func (c *Chain) TokenName(_ context.Context, token common.Address) (string, error) {
	c.record("TokenName")
	t, err := c.token(token)
	if err != nil {
		return "", err
	}
	return t.Name, nil
}

// TokenSymbol reads the stubbed symbol.
func (c *Chain) TokenSymbol(_ context.Context, token common.Address) (string, error) {
	c.record("TokenSymbol")
	t, err := c.token(token)
	if err != nil {
		return "", err
	}
	return t.Symbol, nil
}

// TokenDecimals reads the stubbed decimals.
func (c *Chain) TokenDecimals(_ context.Context, token common.Address) (uint8, error) {
	c.record("TokenDecimals")
	t, err := c.token(token)
	if err != nil {
		return 0, err
	}
	return t.Decimals, nil
}

// BalanceOf reads the stubbed balance, zero when unset.
func (c *Chain) BalanceOf(_ context.Context, token, owner common.Address) (*big.Int, error) {
	c.record("BalanceOf")
	t, err := c.token(token)
	if err != nil {
		return nil, err
	}
	if t.BalanceErr != nil {
		return nil, t.BalanceErr
	}
	if b, ok := t.Balances[owner]; ok {
		return new(big.Int).Set(b), nil
	}
	return big.NewInt(0), nil
}

// ParentNFTAddress reads the stubbed ERC-721 backlink.
func (c *Chain) ParentNFTAddress(_ context.Context, token common.Address) (common.Address, error) {
	c.record("ParentNFTAddress")
	t, err := c.token(token)
	if err != nil {
		return common.Address{}, err
	}
	return t.Parent, nil
}

// TokensList reads the stubbed factory member list.
func (c *Chain) TokensList(_ context.Context, factory common.Address) ([]common.Address, error) {
	c.record("TokensList")
	members, ok := c.Factories[factory]
	if !ok {
		return nil, ErrNoContract
	}
	return members, nil
}

// Dispensers reads the stubbed dispenser list.
func (c *Chain) Dispensers(_ context.Context, token common.Address) ([]common.Address, error) {
	c.record("Dispensers")
	t, err := c.token(token)
	if err != nil {
		return nil, err
	}
	if t.DispensersErr != nil {
		return nil, t.DispensersErr
	}
	return t.Dispensers, nil
}

// Mint records the call and credits the stubbed balance.
func (c *Chain) Mint(_ context.Context, token, to common.Address, amount *big.Int) (common.Hash, error) {
	c.record("Mint")
	if c.MintErr != nil {
		return common.Hash{}, c.MintErr
	}

	c.mu.Lock()
	c.Mints = append(c.Mints, MintCall{Token: token, To: to, Amount: new(big.Int).Set(amount)})
	c.mu.Unlock()

	if t, ok := c.Tokens[token]; ok {
		if prev, ok := t.Balances[to]; ok {
			t.Balances[to] = new(big.Int).Add(prev, amount)
		} else {
			t.Balances[to] = new(big.Int).Set(amount)
		}
	}

	return common.HexToHash("0xfeed"), nil
}
