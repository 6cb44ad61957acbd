package domain

import "github.com/ethereum/go-ethereum/common"

// Friend is a known peer address from the address book.
type Friend struct {
	Address common.Address
	Name    string // optional display name, may be empty
}
