package share

import (
	"context"
	"errors"
	"io"
	"log"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"datatoken-market/internal/domain"
	"datatoken-market/internal/eth/stub"
	"datatoken-market/internal/friends"
)

func testAddr(b byte) common.Address {
	var a common.Address
	a[19] = b
	return a
}

func newTestFlow(chain *stub.Chain, peers []domain.Friend, successDelay time.Duration) *Flow {
	return NewFlow(FlowOptions{
		Minter:       chain,
		Book:         friends.NewStaticBook(peers),
		Logger:       log.New(io.Discard, "", 0),
		SuccessDelay: successDelay,
	})
}

func twoFriends() []domain.Friend {
	return []domain.Friend{
		{Address: testAddr(0x01), Name: "alice"},
		{Address: testAddr(0x02), Name: "bob"},
	}
}

func TestFlow_HappyPath(t *testing.T) {
	chain := stub.NewChain()
	flow := newTestFlow(chain, twoFriends(), 20*time.Millisecond)

	nft := testAddr(0xa1)
	datatoken := testAddr(0xd1)
	alice := testAddr(0x01)

	if err := flow.Open(nft, datatoken); err != nil {
		t.Fatalf("Open: %v", err)
	}
	if snap := flow.Snapshot(); snap.State != StateDialogOpen || snap.SessionID == "" {
		t.Fatalf("unexpected snapshot after open: %+v", snap)
	}

	if err := flow.SelectFriend(alice); err != nil {
		t.Fatalf("SelectFriend: %v", err)
	}
	if !flow.CanConfirm() {
		t.Fatal("confirm should be armed after selection")
	}

	if err := flow.Confirm(context.Background()); err != nil {
		t.Fatalf("Confirm: %v", err)
	}

	if len(chain.Mints) != 1 {
		t.Fatalf("expected 1 mint, got %d", len(chain.Mints))
	}
	mint := chain.Mints[0]
	if mint.Token != datatoken {
		t.Errorf("mint token mismatch: %s", mint.Token.Hex())
	}
	if mint.To != alice {
		t.Errorf("mint recipient mismatch: %s", mint.To.Hex())
	}
	if mint.Amount.Cmp(OneToken()) != 0 {
		t.Errorf("expected one whole token, got %s", mint.Amount)
	}

	if snap := flow.Snapshot(); snap.Status != StatusSuccess {
		t.Errorf("expected success status, got %s", snap.Status)
	}

	// The dialog auto-closes after the success delay.
	time.Sleep(60 * time.Millisecond)
	if snap := flow.Snapshot(); snap.State != StateIdle {
		t.Errorf("expected auto-close to idle, got %s", snap.State)
	}
}

func TestFlow_OpenTwiceRejected(t *testing.T) {
	flow := newTestFlow(stub.NewChain(), twoFriends(), time.Minute)

	if err := flow.Open(testAddr(0xa1), testAddr(0xd1)); err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := flow.Open(testAddr(0xa2), testAddr(0xd2)); !errors.Is(err, ErrShareInProgress) {
		t.Fatalf("expected ErrShareInProgress, got %v", err)
	}

	// The pending target is untouched by the rejected open.
	if snap := flow.Snapshot(); snap.Datatoken != testAddr(0xd1) {
		t.Errorf("pending target changed: %s", snap.Datatoken.Hex())
	}
}

func TestFlow_SingleSelect(t *testing.T) {
	flow := newTestFlow(stub.NewChain(), twoFriends(), time.Minute)

	if err := flow.Open(testAddr(0xa1), testAddr(0xd1)); err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := flow.SelectFriend(testAddr(0x01)); err != nil {
		t.Fatalf("SelectFriend alice: %v", err)
	}
	if err := flow.SelectFriend(testAddr(0x02)); err != nil {
		t.Fatalf("SelectFriend bob: %v", err)
	}

	snap := flow.Snapshot()
	if snap.Selected == nil || *snap.Selected != testAddr(0x02) {
		t.Fatalf("expected bob selected, got %+v", snap.Selected)
	}

	selected := 0
	for _, f := range snap.Friends {
		if snap.Selected != nil && f.Address == *snap.Selected {
			selected++
		}
	}
	if selected != 1 {
		t.Errorf("expected exactly one selected friend, got %d", selected)
	}
}

func TestFlow_SelectUnknownFriend(t *testing.T) {
	flow := newTestFlow(stub.NewChain(), twoFriends(), time.Minute)

	if err := flow.Open(testAddr(0xa1), testAddr(0xd1)); err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := flow.SelectFriend(testAddr(0x99)); !errors.Is(err, ErrUnknownFriend) {
		t.Fatalf("expected ErrUnknownFriend, got %v", err)
	}
}

func TestFlow_SelectWithoutDialog(t *testing.T) {
	flow := newTestFlow(stub.NewChain(), twoFriends(), time.Minute)
	if err := flow.SelectFriend(testAddr(0x01)); !errors.Is(err, ErrNoDialog) {
		t.Fatalf("expected ErrNoDialog, got %v", err)
	}
}

func TestFlow_ConfirmWithoutSelection(t *testing.T) {
	chain := stub.NewChain()
	flow := newTestFlow(chain, twoFriends(), time.Minute)

	if err := flow.Confirm(context.Background()); !errors.Is(err, ErrNoSelection) {
		t.Fatalf("expected ErrNoSelection when idle, got %v", err)
	}

	if err := flow.Open(testAddr(0xa1), testAddr(0xd1)); err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := flow.Confirm(context.Background()); !errors.Is(err, ErrNoSelection) {
		t.Fatalf("expected ErrNoSelection without selection, got %v", err)
	}
	if len(chain.Mints) != 0 {
		t.Errorf("no mint should be issued, got %d", len(chain.Mints))
	}
}

func TestFlow_ConfirmDisabledWithEmptyFriendList(t *testing.T) {
	flow := newTestFlow(stub.NewChain(), nil, time.Minute)

	if err := flow.Open(testAddr(0xa1), testAddr(0xd1)); err != nil {
		t.Fatalf("Open: %v", err)
	}
	if flow.CanConfirm() {
		t.Error("confirm must be disabled with an empty friend list")
	}
	if snap := flow.Snapshot(); snap.CanConfirm {
		t.Error("snapshot must report confirm disabled")
	}
}

func TestFlow_MintErrorKeepsDialogOpen(t *testing.T) {
	chain := stub.NewChain()
	chain.MintErr = errors.New("gas estimation failed")
	flow := newTestFlow(chain, twoFriends(), time.Minute)

	if err := flow.Open(testAddr(0xa1), testAddr(0xd1)); err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := flow.SelectFriend(testAddr(0x01)); err != nil {
		t.Fatalf("SelectFriend: %v", err)
	}

	if err := flow.Confirm(context.Background()); err == nil {
		t.Fatal("expected mint error")
	}

	snap := flow.Snapshot()
	if snap.State != StateFriendSelected {
		t.Errorf("dialog must stay open for retry, got %s", snap.State)
	}
	if snap.Status != StatusError {
		t.Errorf("expected error status, got %s", snap.Status)
	}
	if snap.StatusMessage != "gas estimation failed" {
		t.Errorf("raw failure message must be kept, got %q", snap.StatusMessage)
	}

	// Retry succeeds once the underlying failure clears.
	chain.MintErr = nil
	if err := flow.Confirm(context.Background()); err != nil {
		t.Fatalf("retry Confirm: %v", err)
	}
	if len(chain.Mints) != 1 {
		t.Fatalf("expected exactly 1 successful mint, got %d", len(chain.Mints))
	}
}

func TestFlow_CloseIsIdempotent(t *testing.T) {
	flow := newTestFlow(stub.NewChain(), twoFriends(), time.Minute)

	// Safe with nothing open.
	flow.Close()

	if err := flow.Open(testAddr(0xa1), testAddr(0xd1)); err != nil {
		t.Fatalf("Open: %v", err)
	}
	flow.Close()
	flow.Close()

	snap := flow.Snapshot()
	if snap.State != StateIdle {
		t.Errorf("expected idle after close, got %s", snap.State)
	}
	if snap.Selected != nil || snap.SessionID != "" {
		t.Errorf("transient state must be cleared: %+v", snap)
	}

	// A fresh flow can be opened after closing.
	if err := flow.Open(testAddr(0xa2), testAddr(0xd2)); err != nil {
		t.Fatalf("reopen after close: %v", err)
	}
}
