// Package share drives the access-sharing flow: opening a dialog for an
// asset, selecting a peer and minting one unit of the asset's datatoken
// to them.
package share

import (
	"context"
	"errors"
	"log"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"datatoken-market/internal/domain"
	"datatoken-market/internal/eth"
	"datatoken-market/internal/friends"
	"datatoken-market/internal/observability"
)

// Flow errors.
var (
	// ErrShareInProgress is returned when opening a dialog while another
	// share flow is still open.
	ErrShareInProgress = errors.New("share flow already open")

	// ErrNoDialog is returned for operations that need an open dialog.
	ErrNoDialog = errors.New("no share dialog open")

	// ErrUnknownFriend is returned when selecting an address that is not
	// in the friend list.
	ErrUnknownFriend = errors.New("address not in friend list")

	// ErrNoSelection is returned when confirming without a selected
	// friend.
	ErrNoSelection = errors.New("no friend selected")

	// ErrSubmitting is returned when a mint is already in flight.
	ErrSubmitting = errors.New("share transaction in flight")
)

// State is the share flow state.
type State int

// Share flow states.
const (
	StateIdle State = iota
	StateDialogOpen
	StateFriendSelected
	StateSubmitting
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateDialogOpen:
		return "dialog-open"
	case StateFriendSelected:
		return "friend-selected"
	case StateSubmitting:
		return "submitting"
	default:
		return "unknown"
	}
}

// Status is the mint status indicator shown in the dialog.
type Status int

// Mint status indicator values.
const (
	StatusNone Status = iota
	StatusWaiting
	StatusSuccess
	StatusError
)

// String returns the status name.
func (s Status) String() string {
	switch s {
	case StatusNone:
		return "none"
	case StatusWaiting:
		return "waiting"
	case StatusSuccess:
		return "success"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

// DefaultSuccessDelay is how long the success indicator stays visible
// before the dialog auto-closes.
const DefaultSuccessDelay = 2 * time.Second

// OneToken returns one whole datatoken in 18-decimal base units.
func OneToken() *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)
}

// Flow owns the transient share state. At most one NFT+datatoken pair is
// pending at a time and at most one friend is selected; all transitions
// go through the exported methods.
type Flow struct {
	minter       eth.Minter
	book         friends.Book
	logger       *log.Logger
	successDelay time.Duration

	mu            sync.Mutex
	state         State
	sessionID     string
	nft           common.Address
	datatoken     common.Address
	selected      *common.Address
	status        Status
	statusMessage string
	txHash        common.Hash
	closeTimer    *time.Timer
}

// FlowOptions contains configuration for creating a Flow.
type FlowOptions struct {
	Minter eth.Minter
	Book   friends.Book
	Logger *log.Logger
	// SuccessDelay overrides the auto-close delay after a successful
	// mint. DefaultSuccessDelay when zero.
	SuccessDelay time.Duration
}

// NewFlow creates a share flow in the idle state.
func NewFlow(opts FlowOptions) *Flow {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	delay := opts.SuccessDelay
	if delay == 0 {
		delay = DefaultSuccessDelay
	}
	return &Flow{
		minter:       opts.Minter,
		book:         opts.Book,
		logger:       logger,
		successDelay: delay,
	}
}

// Open starts a share flow for the given NFT and datatoken pair.
// Opening while another flow is open is rejected.
func (f *Flow) Open(nft, datatoken common.Address) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.state != StateIdle {
		return ErrShareInProgress
	}

	f.state = StateDialogOpen
	f.sessionID = uuid.NewString()
	f.nft = nft
	f.datatoken = datatoken
	f.selected = nil
	f.status = StatusNone
	f.statusMessage = ""
	f.txHash = common.Hash{}

	observability.RecordShareDialogOpened()
	return nil
}

// SelectFriend marks a friend as the share target. Selecting a new
// friend replaces any previous selection; at most one friend is selected
// at a time.
func (f *Flow) SelectFriend(addr common.Address) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch f.state {
	case StateIdle:
		return ErrNoDialog
	case StateSubmitting:
		return ErrSubmitting
	}

	if !f.knownFriend(addr) {
		return ErrUnknownFriend
	}

	selected := addr
	f.selected = &selected
	f.state = StateFriendSelected
	return nil
}

func (f *Flow) knownFriend(addr common.Address) bool {
	for _, friend := range f.book.Friends() {
		if friend.Address == addr {
			return true
		}
	}
	return false
}

// CanConfirm reports whether the confirm action is armed: an open dialog,
// a non-empty friend list and exactly one selected friend.
func (f *Flow) CanConfirm() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state == StateFriendSelected && f.selected != nil && len(f.book.Friends()) > 0
}

// Confirm mints one whole datatoken to the selected friend. Without a
// pending target and a selected friend it is a rejected no-op. On success
// the status indicator shows success and the dialog auto-closes after the
// configured delay; on failure the raw error message is kept and the
// dialog stays open for retry or cancel. Confirm never retries on its
// own.
func (f *Flow) Confirm(ctx context.Context) error {
	f.mu.Lock()
	if f.state == StateSubmitting {
		f.mu.Unlock()
		return ErrSubmitting
	}
	if f.state != StateFriendSelected || f.selected == nil {
		f.mu.Unlock()
		return ErrNoSelection
	}

	to := *f.selected
	token := f.datatoken
	f.state = StateSubmitting
	f.status = StatusWaiting
	f.statusMessage = ""
	f.mu.Unlock()

	hash, err := f.minter.Mint(ctx, token, to, OneToken())

	f.mu.Lock()
	defer f.mu.Unlock()

	// The dialog may have been cancelled while the mint was in flight;
	// in that case the result is dropped.
	if f.state != StateSubmitting {
		return err
	}

	if err != nil {
		f.logger.Printf("share mint to %s failed: %v", to.Hex(), err)
		observability.RecordShareMint("error")
		f.state = StateFriendSelected
		f.status = StatusError
		f.statusMessage = err.Error()
		return err
	}

	observability.RecordShareMint("success")
	f.status = StatusSuccess
	f.txHash = hash
	f.closeTimer = time.AfterFunc(f.successDelay, f.Close)
	return nil
}

// Close dismisses the dialog and clears all transient share state.
// Safe to call when no dialog is open.
func (f *Flow) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closeTimer != nil {
		f.closeTimer.Stop()
		f.closeTimer = nil
	}

	f.state = StateIdle
	f.sessionID = ""
	f.nft = common.Address{}
	f.datatoken = common.Address{}
	f.selected = nil
	f.status = StatusNone
	f.statusMessage = ""
	f.txHash = common.Hash{}
}

// Snapshot is a point-in-time view of the flow for rendering.
type Snapshot struct {
	State         State
	SessionID     string
	NFT           common.Address
	Datatoken     common.Address
	Selected      *common.Address
	Status        Status
	StatusMessage string
	TxHash        common.Hash
	CanConfirm    bool
	Friends       []domain.Friend
}

// Snapshot returns the current flow state for rendering.
func (f *Flow) Snapshot() Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()

	var selected *common.Address
	if f.selected != nil {
		addr := *f.selected
		selected = &addr
	}

	list := f.book.Friends()
	return Snapshot{
		State:         f.state,
		SessionID:     f.sessionID,
		NFT:           f.nft,
		Datatoken:     f.datatoken,
		Selected:      selected,
		Status:        f.status,
		StatusMessage: f.statusMessage,
		TxHash:        f.txHash,
		CanConfirm:    f.state == StateFriendSelected && f.selected != nil && len(list) > 0,
		Friends:       list,
	}
}
