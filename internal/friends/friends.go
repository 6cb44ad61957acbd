// Package friends exposes the peer address book consumed by the share
// flow. The book is an external collaborator; this core only reads it.
package friends

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"datatoken-market/internal/domain"
)

// Book provides the current peer list as an ordered sequence.
type Book interface {
	Friends() []domain.Friend
}

// StaticBook is a Book over a fixed list.
type StaticBook struct {
	friends []domain.Friend
}

// NewStaticBook creates a Book over the given entries.
func NewStaticBook(entries []domain.Friend) *StaticBook {
	friends := make([]domain.Friend, len(entries))
	copy(friends, entries)
	return &StaticBook{friends: friends}
}

// Friends returns a copy of the peer list in its original order.
func (b *StaticBook) Friends() []domain.Friend {
	out := make([]domain.Friend, len(b.friends))
	copy(out, b.friends)
	return out
}

// ParseList parses a comma-separated list of peers. Each entry is either
// a bare hex address or name=address.
func ParseList(s string) ([]domain.Friend, error) {
	var friends []domain.Friend
	for _, entry := range strings.Split(s, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}

		name := ""
		addr := entry
		if i := strings.IndexByte(entry, '='); i >= 0 {
			name = strings.TrimSpace(entry[:i])
			addr = strings.TrimSpace(entry[i+1:])
		}

		if !common.IsHexAddress(addr) {
			return nil, fmt.Errorf("invalid address %q", addr)
		}
		friends = append(friends, domain.Friend{
			Address: common.HexToAddress(addr),
			Name:    name,
		})
	}
	return friends, nil
}
