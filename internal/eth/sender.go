package eth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// DefaultSenderTimeout bounds a single signing-service call.
const DefaultSenderTimeout = 30 * time.Second

// HTTPSender submits contract calls to an external signing service. The
// service holds the keys, signs and broadcasts the transaction; this
// client only hands over the target address and calldata and gets the tx
// hash back.
type HTTPSender struct {
	endpoint string
	client   *http.Client
}

// HTTPSenderOption configures HTTPSender.
type HTTPSenderOption func(*HTTPSender)

// WithSenderHTTPClient sets a custom http.Client.
func WithSenderHTTPClient(client *http.Client) HTTPSenderOption {
	return func(s *HTTPSender) {
		s.client = client
	}
}

// NewHTTPSender creates a sender that POSTs contract calls to endpoint.
func NewHTTPSender(endpoint string, opts ...HTTPSenderOption) *HTTPSender {
	s := &HTTPSender{
		endpoint: endpoint,
		client:   &http.Client{Timeout: DefaultSenderTimeout},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type senderRequest struct {
	To   string `json:"to"`
	Data string `json:"data"`
}

type senderResponse struct {
	TxHash string `json:"txHash"`
	Error  string `json:"error,omitempty"`
}

// SendContractCall submits the call and returns the broadcast tx hash.
func (s *HTTPSender) SendContractCall(ctx context.Context, to common.Address, calldata []byte) (common.Hash, error) {
	body, err := json.Marshal(senderRequest{
		To:   to.Hex(),
		Data: hexutil.Encode(calldata),
	})
	if err != nil {
		return common.Hash{}, fmt.Errorf("encode send request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return common.Hash{}, fmt.Errorf("create send request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return common.Hash{}, fmt.Errorf("send contract call: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return common.Hash{}, fmt.Errorf("read send response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return common.Hash{}, fmt.Errorf("sender status %d: %s", resp.StatusCode, string(raw))
	}

	var out senderResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return common.Hash{}, fmt.Errorf("decode send response: %w", err)
	}
	if out.Error != "" {
		return common.Hash{}, fmt.Errorf("sender rejected call: %s", out.Error)
	}
	if out.TxHash == "" {
		return common.Hash{}, fmt.Errorf("sender returned no tx hash")
	}
	return common.HexToHash(out.TxHash), nil
}
