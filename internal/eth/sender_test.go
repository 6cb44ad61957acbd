package eth

import (
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

func TestHTTPSender_SendContractCall(t *testing.T) {
	token := common.HexToAddress("0xd1")
	calldata := []byte{0x40, 0xc1, 0x0f, 0x19, 0x01, 0x02}

	var got senderRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s", r.Method)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		json.NewEncoder(w).Encode(senderResponse{TxHash: "0xbeef"})
	}))
	defer srv.Close()

	hash, err := NewHTTPSender(srv.URL).SendContractCall(context.Background(), token, calldata)
	if err != nil {
		t.Fatalf("SendContractCall: %v", err)
	}
	if hash != common.HexToHash("0xbeef") {
		t.Errorf("hash = %s", hash.Hex())
	}
	if got.To != token.Hex() {
		t.Errorf("to = %s", got.To)
	}
	if got.Data != hexutil.Encode(calldata) {
		t.Errorf("data = %s", got.Data)
	}
}

func TestHTTPSender_Rejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(senderResponse{Error: "insufficient funds"})
	}))
	defer srv.Close()

	_, err := NewHTTPSender(srv.URL).SendContractCall(context.Background(), common.HexToAddress("0xd1"), []byte{0x01})
	if err == nil || !strings.Contains(err.Error(), "insufficient funds") {
		t.Fatalf("expected rejection error, got %v", err)
	}
}

func TestHTTPSender_BadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "signer down", http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := NewHTTPSender(srv.URL).SendContractCall(context.Background(), common.HexToAddress("0xd1"), []byte{0x01})
	if err == nil || !strings.Contains(err.Error(), "sender status 502") {
		t.Fatalf("expected status error, got %v", err)
	}
}

func TestHTTPSender_MissingHash(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	_, err := NewHTTPSender(srv.URL).SendContractCall(context.Background(), common.HexToAddress("0xd1"), []byte{0x01})
	if err == nil || !strings.Contains(err.Error(), "no tx hash") {
		t.Fatalf("expected missing hash error, got %v", err)
	}
}

func TestHTTPSender_DrivesClientMint(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req senderRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		data, err := hexutil.Decode(req.Data)
		if err != nil {
			t.Errorf("decode calldata: %v", err)
		}
		if len(data) < 4 || string(data[:4]) != string(datatokenABI.Methods["mint"].ID) {
			t.Errorf("unexpected selector in %s", req.Data)
		}
		json.NewEncoder(w).Encode(senderResponse{TxHash: "0xfeed"})
	}))
	defer srv.Close()

	client := NewClient(newFakeBackend(), WithSender(NewHTTPSender(srv.URL)))
	hash, err := client.Mint(context.Background(), common.HexToAddress("0xd1"), common.HexToAddress("0xab"), big.NewInt(1))
	if err != nil {
		t.Fatalf("Mint: %v", err)
	}
	if hash != common.HexToHash("0xfeed") {
		t.Errorf("hash = %s", hash.Hex())
	}
}
