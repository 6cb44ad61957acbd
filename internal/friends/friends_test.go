package friends

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"datatoken-market/internal/domain"
)

func TestParseList(t *testing.T) {
	list, err := ParseList("alice=0x0000000000000000000000000000000000000001, 0x0000000000000000000000000000000000000002")
	if err != nil {
		t.Fatalf("ParseList: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(list))
	}
	if list[0].Name != "alice" || list[0].Address != common.HexToAddress("0x1") {
		t.Errorf("unexpected first entry: %+v", list[0])
	}
	if list[1].Name != "" || list[1].Address != common.HexToAddress("0x2") {
		t.Errorf("unexpected second entry: %+v", list[1])
	}
}

func TestParseListEmpty(t *testing.T) {
	for _, s := range []string{"", " ", ",,"} {
		list, err := ParseList(s)
		if err != nil {
			t.Fatalf("ParseList(%q): %v", s, err)
		}
		if len(list) != 0 {
			t.Errorf("ParseList(%q): expected no entries, got %d", s, len(list))
		}
	}
}

func TestParseListInvalidAddress(t *testing.T) {
	for _, s := range []string{"notanaddress", "bob=0x123", "alice=", "0xzz00000000000000000000000000000000000001"} {
		if _, err := ParseList(s); err == nil {
			t.Errorf("ParseList(%q): expected error", s)
		}
	}
}

func TestStaticBookCopies(t *testing.T) {
	entries := []domain.Friend{{Address: common.HexToAddress("0x1"), Name: "alice"}}
	book := NewStaticBook(entries)

	entries[0].Name = "mutated"
	if got := book.Friends()[0].Name; got != "alice" {
		t.Errorf("book shares the input slice: %q", got)
	}

	out := book.Friends()
	out[0].Name = "mutated"
	if got := book.Friends()[0].Name; got != "alice" {
		t.Errorf("book shares the output slice: %q", got)
	}
}
