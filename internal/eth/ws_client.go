package eth

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math/big"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/websocket"

	"datatoken-market/internal/domain"
)

// WSConfig configures WebSocket subscription behavior.
type WSConfig struct {
	// ReconnectDelay is the initial delay before a reconnect attempt.
	ReconnectDelay time.Duration
	// MaxReconnectDelay caps the reconnect backoff.
	MaxReconnectDelay time.Duration
	// PingInterval is the interval for ping frames.
	PingInterval time.Duration
	// ReadTimeout bounds a single message read.
	ReadTimeout time.Duration
	// WriteTimeout bounds a single message write.
	WriteTimeout time.Duration
	// Logger receives connection-level events. Defaults to log.Default.
	Logger *log.Logger
}

// DefaultWSConfig returns the default WebSocket configuration.
func DefaultWSConfig() WSConfig {
	return WSConfig{
		ReconnectDelay:    1 * time.Second,
		MaxReconnectDelay: 30 * time.Second,
		PingInterval:      30 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      10 * time.Second,
	}
}

// WSClient subscribes to Transfer logs over an eth_subscribe WebSocket
// endpoint. It reconnects with capped backoff and re-establishes active
// subscriptions after a reconnect.
type WSClient struct {
	endpoint string
	config   WSConfig
	logger   *log.Logger

	conn      *websocket.Conn
	connMu    sync.Mutex
	closed    atomic.Bool
	requestID atomic.Uint64

	// subs maps subscription id (hex string) to delivery channel
	subs   map[string]chan domain.TransferLog
	subsMu sync.RWMutex

	// activeFilters keeps filters for resubscription after reconnect
	activeFilters   map[string]TransferFilter
	activeFiltersMu sync.RWMutex

	// pendingSubs maps request id to channel waiting for a subscription id
	pendingSubs   map[uint64]chan string
	pendingSubsMu sync.Mutex

	done chan struct{}
	wg   sync.WaitGroup

	reconnecting atomic.Bool
}

// NewWSClient connects to an Ethereum WebSocket endpoint.
func NewWSClient(ctx context.Context, endpoint string, config *WSConfig) (*WSClient, error) {
	cfg := DefaultWSConfig()
	if config != nil {
		cfg = *config
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}

	c := &WSClient{
		endpoint:      endpoint,
		config:        cfg,
		logger:        logger,
		subs:          make(map[string]chan domain.TransferLog),
		activeFilters: make(map[string]TransferFilter),
		pendingSubs:   make(map[uint64]chan string),
		done:          make(chan struct{}),
	}

	if err := c.connect(ctx); err != nil {
		return nil, err
	}

	c.wg.Add(2)
	go c.readLoop()
	go c.pingLoop()

	return c, nil
}

func (c *WSClient) connect(ctx context.Context) error {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, c.endpoint, nil)
	if err != nil {
		return fmt.Errorf("websocket dial: %w", err)
	}
	c.conn = conn
	return nil
}

// SubscribeTransfers subscribes to Transfer logs matching the filter.
// Block range fields of the filter are ignored; subscriptions always
// deliver new logs only.
func (c *WSClient) SubscribeTransfers(ctx context.Context, filter TransferFilter) (<-chan domain.TransferLog, error) {
	if c.closed.Load() {
		return nil, fmt.Errorf("client closed")
	}

	subID, err := c.subscribe(ctx, filter)
	if err != nil {
		return nil, err
	}

	// Buffered so a slow consumer absorbs bursts; sends block rather
	// than drop events.
	ch := make(chan domain.TransferLog, 1024)
	c.subsMu.Lock()
	c.subs[subID] = ch
	c.subsMu.Unlock()

	c.activeFiltersMu.Lock()
	c.activeFilters[subID] = filter
	c.activeFiltersMu.Unlock()

	return ch, nil
}

// subscribe issues eth_subscribe and waits for the subscription id.
func (c *WSClient) subscribe(ctx context.Context, filter TransferFilter) (string, error) {
	reqID := c.requestID.Add(1)

	params := map[string]interface{}{
		"topics": subscriptionTopics(filter),
	}
	if filter.Token != nil {
		params["address"] = filter.Token.Hex()
	}

	req := wsRequest{
		JSONRPC: "2.0",
		ID:      reqID,
		Method:  "eth_subscribe",
		Params:  []interface{}{"logs", params},
	}

	confirmCh := make(chan string, 1)
	c.pendingSubsMu.Lock()
	c.pendingSubs[reqID] = confirmCh
	c.pendingSubsMu.Unlock()

	drop := func() {
		c.pendingSubsMu.Lock()
		delete(c.pendingSubs, reqID)
		c.pendingSubsMu.Unlock()
	}

	c.connMu.Lock()
	if c.conn == nil {
		c.connMu.Unlock()
		drop()
		return "", fmt.Errorf("not connected")
	}
	c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
	err := c.conn.WriteJSON(req)
	c.connMu.Unlock()

	if err != nil {
		drop()
		return "", fmt.Errorf("write subscribe: %w", err)
	}

	select {
	case subID := <-confirmCh:
		if subID == "" {
			return "", fmt.Errorf("subscribe rejected")
		}
		return subID, nil
	case <-time.After(30 * time.Second):
		drop()
		return "", fmt.Errorf("subscription timeout after 30s")
	case <-c.done:
		return "", fmt.Errorf("client closed")
	case <-ctx.Done():
		drop()
		return "", ctx.Err()
	}
}

func subscriptionTopics(filter TransferFilter) []interface{} {
	topics := []interface{}{TransferTopic.Hex()}
	if filter.From != nil {
		topics = append(topics, common.BytesToHash(filter.From.Bytes()).Hex())
	} else if filter.To != nil {
		topics = append(topics, nil)
	}
	if filter.To != nil {
		topics = append(topics, common.BytesToHash(filter.To.Bytes()).Hex())
	}
	return topics
}

// Close closes the connection and all subscription channels.
// Safe to call more than once.
func (c *WSClient) Close() error {
	if c.closed.Swap(true) {
		return nil
	}

	close(c.done)

	c.connMu.Lock()
	if c.conn != nil {
		c.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.conn.Close()
	}
	c.connMu.Unlock()

	c.subsMu.Lock()
	for id, ch := range c.subs {
		close(ch)
		delete(c.subs, id)
	}
	c.subsMu.Unlock()

	c.pendingSubsMu.Lock()
	for id, ch := range c.pendingSubs {
		close(ch)
		delete(c.pendingSubs, id)
	}
	c.pendingSubsMu.Unlock()

	c.wg.Wait()
	return nil
}

// readLoop reads messages and dispatches them to subscribers.
func (c *WSClient) readLoop() {
	defer c.wg.Done()

	reconnectDelay := c.config.ReconnectDelay

	for !c.closed.Load() {
		c.connMu.Lock()
		conn := c.conn
		c.connMu.Unlock()

		if conn == nil {
			select {
			case <-c.done:
				return
			case <-time.After(100 * time.Millisecond):
				continue
			}
		}

		conn.SetReadDeadline(time.Now().Add(c.config.ReadTimeout))

		_, message, err := conn.ReadMessage()
		if err != nil {
			if c.closed.Load() {
				return
			}

			if !c.reconnecting.Swap(true) {
				go c.reconnect(reconnectDelay)
			}

			reconnectDelay *= 2
			if reconnectDelay > c.config.MaxReconnectDelay {
				reconnectDelay = c.config.MaxReconnectDelay
			}

			select {
			case <-c.done:
				return
			case <-time.After(100 * time.Millisecond):
				continue
			}
		}

		reconnectDelay = c.config.ReconnectDelay
		c.handleMessage(message)
	}
}

// reconnect re-establishes the connection and resubscribes.
func (c *WSClient) reconnect(delay time.Duration) {
	defer c.reconnecting.Store(false)

	if c.closed.Load() {
		return
	}

	select {
	case <-c.done:
		return
	case <-time.After(delay):
	}

	c.connMu.Lock()
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.connMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := c.connect(ctx); err != nil {
		c.logger.Printf("ws reconnect failed: %v", err)
		return
	}

	c.resubscribeAll()
}

func (c *WSClient) resubscribeAll() {
	c.activeFiltersMu.RLock()
	filters := make(map[string]TransferFilter, len(c.activeFilters))
	for id, f := range c.activeFilters {
		filters[id] = f
	}
	c.activeFiltersMu.RUnlock()

	c.subsMu.RLock()
	channels := make(map[string]chan domain.TransferLog, len(c.subs))
	for id, ch := range c.subs {
		channels[id] = ch
	}
	c.subsMu.RUnlock()

	for oldID, filter := range filters {
		ch := channels[oldID]
		if ch == nil {
			continue
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		newID, err := c.subscribe(ctx, filter)
		cancel()
		if err != nil {
			c.logger.Printf("ws resubscribe failed: %v", err)
			continue
		}

		c.subsMu.Lock()
		delete(c.subs, oldID)
		c.subs[newID] = ch
		c.subsMu.Unlock()

		c.activeFiltersMu.Lock()
		delete(c.activeFilters, oldID)
		c.activeFilters[newID] = filter
		c.activeFiltersMu.Unlock()
	}
}

// handleMessage routes a raw message to the matching handler.
func (c *WSClient) handleMessage(message []byte) {
	var resp wsSubscribeResponse
	if err := json.Unmarshal(message, &resp); err == nil && resp.Result != "" {
		c.handleSubscribeResponse(&resp)
		return
	}

	var notif wsNotification
	if err := json.Unmarshal(message, &notif); err == nil && notif.Method == "eth_subscription" {
		c.handleLogNotification(&notif)
		return
	}

	var errResp struct {
		ID    uint64 `json:"id"`
		Error *struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(message, &errResp); err == nil && errResp.Error != nil {
		c.logger.Printf("ws error response: code=%d msg=%s", errResp.Error.Code, errResp.Error.Message)
		// Unblock the waiting subscriber; empty id means rejection.
		c.pendingSubsMu.Lock()
		if ch, ok := c.pendingSubs[errResp.ID]; ok {
			delete(c.pendingSubs, errResp.ID)
			select {
			case ch <- "":
			default:
			}
		}
		c.pendingSubsMu.Unlock()
	}
}

func (c *WSClient) handleSubscribeResponse(resp *wsSubscribeResponse) {
	c.pendingSubsMu.Lock()
	ch, ok := c.pendingSubs[resp.ID]
	if ok {
		delete(c.pendingSubs, resp.ID)
	}
	c.pendingSubsMu.Unlock()

	if ok {
		select {
		case ch <- resp.Result:
		default:
		}
	}
}

func (c *WSClient) handleLogNotification(notif *wsNotification) {
	if notif.Params == nil {
		return
	}

	transfer, ok := decodeWSLog(&notif.Params.Result)
	if !ok {
		return
	}

	c.subsMu.RLock()
	ch, ok := c.subs[notif.Params.Subscription]
	c.subsMu.RUnlock()

	if ok {
		// Block rather than drop; Close unblocks via done.
		select {
		case ch <- transfer:
		case <-c.done:
		}
	}
}

// decodeWSLog converts a raw subscription log into a TransferLog.
func decodeWSLog(raw *wsLog) (domain.TransferLog, bool) {
	if len(raw.Topics) < 3 {
		return domain.TransferLog{}, false
	}

	value := new(big.Int)
	if data := common.FromHex(raw.Data); len(data) > 0 {
		value.SetBytes(data)
	}

	var blockNumber uint64
	if n, ok := new(big.Int).SetString(strings.TrimPrefix(raw.BlockNumber, "0x"), 16); ok {
		blockNumber = n.Uint64()
	}

	var logIndex uint
	if n, ok := new(big.Int).SetString(strings.TrimPrefix(raw.LogIndex, "0x"), 16); ok {
		logIndex = uint(n.Uint64())
	}

	return domain.TransferLog{
		Contract:    common.HexToAddress(raw.Address),
		From:        common.BytesToAddress(common.HexToHash(raw.Topics[1]).Bytes()),
		To:          common.BytesToAddress(common.HexToHash(raw.Topics[2]).Bytes()),
		Value:       value,
		BlockNumber: blockNumber,
		TxHash:      common.HexToHash(raw.TransactionHash),
		LogIndex:    logIndex,
	}, true
}

// pingLoop keeps the connection alive.
func (c *WSClient) pingLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.connMu.Lock()
			if c.conn != nil {
				c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
				// A failed ping surfaces as a read error; the reader
				// owns reconnection.
				c.conn.WriteMessage(websocket.PingMessage, nil)
			}
			c.connMu.Unlock()
		}
	}
}

// WebSocket message types.

type wsRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      uint64        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params,omitempty"`
}

type wsSubscribeResponse struct {
	JSONRPC string `json:"jsonrpc"`
	ID      uint64 `json:"id"`
	Result  string `json:"result"`
}

type wsNotification struct {
	JSONRPC string    `json:"jsonrpc"`
	Method  string    `json:"method"`
	Params  *wsParams `json:"params"`
}

type wsParams struct {
	Subscription string `json:"subscription"`
	Result       wsLog  `json:"result"`
}

type wsLog struct {
	Address         string   `json:"address"`
	Topics          []string `json:"topics"`
	Data            string   `json:"data"`
	BlockNumber     string   `json:"blockNumber"`
	TransactionHash string   `json:"transactionHash"`
	LogIndex        string   `json:"logIndex"`
}
