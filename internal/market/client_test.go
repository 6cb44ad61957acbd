package market

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const userAssetsBody = `{
	"success": true,
	"message": "ok",
	"assets": [
		{
			"_source": {
				"id": "did:op:abc123",
				"nft": {"address": "0x1111111111111111111111111111111111111111"},
				"metadata": {
					"name": "Ocean temperature readings",
					"description": "Hourly sensor data",
					"author": "marine-lab",
					"created": "2024-05-01T10:00:00Z",
					"previewImageUrl": "https://example.com/preview.png"
				},
				"datatokens": [
					{"symbol": "OTR-1", "address": "0x2222222222222222222222222222222222222222"}
				]
			}
		},
		{
			"_source": {
				"id": "did:op:def456",
				"nft": {"address": "0x3333333333333333333333333333333333333333"},
				"metadata": {"name": "Road traffic counts"},
				"datatokens": []
			}
		}
	]
}`

func TestClient_UserAssets(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(userAssetsBody))
	}))
	defer srv.Close()

	client := NewClient(srv.URL)
	assets, err := client.UserAssets(context.Background(), "0xAbCd000000000000000000000000000000000000", 137)
	require.NoError(t, err)

	assert.Equal(t, "/api/user-assets/0xAbCd000000000000000000000000000000000000/137", gotPath)
	require.Len(t, assets, 2)

	first := assets[0]
	assert.Equal(t, "did:op:abc123", first.ID)
	assert.Equal(t, "0x1111111111111111111111111111111111111111", first.NFTAddress)
	assert.Equal(t, "Ocean temperature readings", first.Metadata.Name)
	assert.Equal(t, "marine-lab", first.Metadata.Author)
	assert.Equal(t, "https://example.com/preview.png", first.Metadata.PreviewImageURL)
	require.Len(t, first.Datatokens, 1)
	assert.Equal(t, "OTR-1", first.Datatokens[0].Symbol)
	assert.Equal(t, "0x2222222222222222222222222222222222222222", first.Datatokens[0].Address)

	assert.Equal(t, "Road traffic counts", assets[1].Metadata.Name)
	assert.Empty(t, assets[1].Datatokens)
}

func TestClient_UserAssetsEmpty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success": true, "assets": []}`))
	}))
	defer srv.Close()

	assets, err := NewClient(srv.URL).UserAssets(context.Background(), "0xabc", 1)
	require.NoError(t, err)
	require.NotNil(t, assets)
	assert.Empty(t, assets)
}

func TestClient_UserAssetsBackendFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success": false, "message": "index unavailable"}`))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL).UserAssets(context.Background(), "0xabc", 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "index unavailable")
}

func TestClient_UserAssetsHTTPErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, WithRetryDelay(time.Millisecond))
	_, err := client.UserAssets(context.Background(), "0xabc", 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected status 500")
	assert.Equal(t, int32(1), calls.Load(), "500 must not be retried")
}

func TestClient_UserAssetsNeverRetriedByDefault(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "slow down", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, WithRetryDelay(time.Millisecond))
	_, err := client.UserAssets(context.Background(), "0xabc", 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limited")
	assert.Equal(t, int32(1), calls.Load(), "a fetch issues exactly one request")
}

func TestClient_UserAssetsOptInRetry(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, "slow down", http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(`{"success": true, "assets": []}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, WithRetryDelay(time.Millisecond), WithMaxRetries(2))
	_, err := client.UserAssets(context.Background(), "0xabc", 1)
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestClient_UserAssetsOptInRetriesExhausted(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "slow down", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, WithRetryDelay(time.Millisecond), WithMaxRetries(2))
	_, err := client.UserAssets(context.Background(), "0xabc", 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max retries exceeded")
	assert.Equal(t, int32(3), calls.Load())
}

func TestClient_UserAssetsMalformedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`not json`))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL).UserAssets(context.Background(), "0xabc", 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode user assets")
}
