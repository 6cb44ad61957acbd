// Package main runs the market UI server: asset display plus the share
// flow, with Prometheus metrics on a separate listener.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"datatoken-market/internal/eth"
	"datatoken-market/internal/friends"
	"datatoken-market/internal/market"
	"datatoken-market/internal/observability"
	"datatoken-market/internal/share"
	"datatoken-market/internal/web"
)

func main() {
	listenAddr := flag.String("listen", ":8080", "UI server listen address")
	marketURL := flag.String("market-url", "", "Marketplace API base URL")
	rpcEndpoint := flag.String("rpc-endpoint", "", "Ethereum RPC HTTP endpoint")
	senderURL := flag.String("sender-url", "", "External signing service URL for mint transactions")
	chainID := flag.Int64("chain-id", 0, "Chain id for asset index queries (0 = query the node)")
	friendList := flag.String("friends", "", "Comma-separated peer list (name=0xaddr or 0xaddr)")
	metricsAddr := flag.String("metrics-addr", ":9090", "Prometheus metrics HTTP address (empty to disable)")
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lshortfile)

	if *marketURL == "" {
		logger.Fatal("missing --market-url")
	}
	if *rpcEndpoint == "" {
		logger.Fatal("missing --rpc-endpoint")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var clientOpts []eth.ClientOption
	if *senderURL != "" {
		clientOpts = append(clientOpts, eth.WithSender(eth.NewHTTPSender(*senderURL)))
	} else {
		logger.Println("no --sender-url configured; share confirmations will fail until a transaction sender is wired")
	}

	chain, err := eth.Dial(ctx, *rpcEndpoint, clientOpts...)
	if err != nil {
		logger.Fatalf("connect to RPC: %v", err)
	}

	resolvedChainID := *chainID
	if resolvedChainID == 0 {
		id, err := chain.ChainID(ctx)
		if err != nil {
			logger.Fatalf("query chain id: %v", err)
		}
		resolvedChainID = id.Int64()
	}
	logger.Printf("serving market UI for chain %d", resolvedChainID)

	peers, err := friends.ParseList(*friendList)
	if err != nil {
		logger.Fatalf("parse friend list: %v", err)
	}
	if len(peers) == 0 {
		logger.Println("friend list is empty; share confirm will stay disabled")
	}

	flow := share.NewFlow(share.FlowOptions{
		Minter: chain,
		Book:   friends.NewStaticBook(peers),
		Logger: logger,
	})

	server := web.NewServer(web.ServerOptions{
		Assets:  market.NewClient(*marketURL),
		Flow:    flow,
		ChainID: resolvedChainID,
		Logger:  logger,
	})

	if *metricsAddr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", observability.Handler())
			logger.Printf("starting metrics server on %s", *metricsAddr)
			if err := http.ListenAndServe(*metricsAddr, mux); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Printf("metrics server error: %v", err)
			}
		}()
	}

	gin.SetMode(gin.ReleaseMode)
	httpServer := &http.Server{
		Addr:    *listenAddr,
		Handler: server.Router(),
	}

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh
		logger.Printf("received signal %v, shutting down", sig)

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Printf("shutdown error: %v", err)
		}
		cancel()
	}()

	logger.Printf("listening on %s", *listenAddr)
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatalf("server error: %v", err)
	}
}
