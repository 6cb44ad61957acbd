// Package main scans a wallet for datatoken holdings and prints them as
// JSON. With --watch it additionally streams live transfers touching the
// wallet over a WebSocket subscription.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/common"

	"datatoken-market/internal/discovery"
	"datatoken-market/internal/domain"
	"datatoken-market/internal/eth"
	"datatoken-market/internal/observability"
)

func main() {
	rpcEndpoint := flag.String("rpc-endpoint", "", "Ethereum RPC HTTP endpoint")
	wsEndpoint := flag.String("ws-endpoint", "", "Ethereum WebSocket endpoint (required with --watch)")
	wallet := flag.String("wallet", "", "Wallet address to scan")
	window := flag.Uint64("window", discovery.DefaultScanWindow, "Trailing block window for the directional scans")
	concurrency := flag.Int("concurrency", discovery.DefaultMaxConcurrent, "Resolution fan-out bound")
	watch := flag.Bool("watch", false, "Stream live transfers after the scan")
	metricsAddr := flag.String("metrics-addr", "", "Prometheus metrics HTTP address (empty to disable)")
	flag.Parse()

	logger := log.New(os.Stderr, "[holdings] ", log.LstdFlags)

	if *rpcEndpoint == "" {
		logger.Fatal("missing --rpc-endpoint")
	}
	if !common.IsHexAddress(*wallet) {
		logger.Fatalf("invalid --wallet %q", *wallet)
	}
	walletAddr := common.HexToAddress(*wallet)

	if *metricsAddr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", observability.Handler())
			if err := http.ListenAndServe(*metricsAddr, mux); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Printf("metrics server error: %v", err)
			}
		}()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh
		logger.Printf("received signal %v, stopping", sig)
		cancel()
	}()

	chain, err := eth.Dial(ctx, *rpcEndpoint)
	if err != nil {
		logger.Fatalf("connect to RPC: %v", err)
	}

	scanner := discovery.NewScanner(discovery.ScannerOptions{
		Chain:         chain,
		Logger:        logger,
		Window:        *window,
		MaxConcurrent: *concurrency,
	})

	holdings, err := scanner.FetchWalletTokenHoldings(ctx, walletAddr)
	if err != nil {
		logger.Fatalf("scan failed: %v", err)
	}
	logger.Println(holdings.Message)

	out, err := json.MarshalIndent(holdings.Tokens, "", "  ")
	if err != nil {
		logger.Fatalf("encode holdings: %v", err)
	}
	os.Stdout.Write(append(out, '\n'))

	if !*watch {
		return
	}
	if *wsEndpoint == "" {
		logger.Fatal("--watch requires --ws-endpoint")
	}

	if err := watchTransfers(ctx, logger, *wsEndpoint, walletAddr); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatalf("watch failed: %v", err)
	}
}

// watchTransfers streams incoming and outgoing transfers for the wallet
// until the context is cancelled.
func watchTransfers(ctx context.Context, logger *log.Logger, endpoint string, wallet common.Address) error {
	client, err := eth.NewWSClient(ctx, endpoint, &eth.WSConfig{Logger: logger})
	if err != nil {
		return err
	}
	defer client.Close()

	incoming, err := client.SubscribeTransfers(ctx, eth.TransferFilter{To: &wallet})
	if err != nil {
		return err
	}
	outgoing, err := client.SubscribeTransfers(ctx, eth.TransferFilter{From: &wallet})
	if err != nil {
		return err
	}

	logger.Printf("watching transfers for %s", wallet.Hex())

	enc := json.NewEncoder(os.Stdout)
	for {
		var transfer domain.TransferLog
		var ok bool
		select {
		case <-ctx.Done():
			return ctx.Err()
		case transfer, ok = <-incoming:
		case transfer, ok = <-outgoing:
		}
		if !ok {
			return nil
		}
		if err := enc.Encode(transfer); err != nil {
			return err
		}
	}
}
