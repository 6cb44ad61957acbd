// Package web renders the asset display and share dialog over HTTP.
package web

import (
	"embed"
	"html/template"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"

	"datatoken-market/internal/domain"
	"datatoken-market/internal/market"
	"datatoken-market/internal/observability"
	"datatoken-market/internal/share"
)

//go:embed templates/*.tmpl
var templatesFS embed.FS

// EmptyStateMessage is rendered for wallets with zero indexed assets.
const EmptyStateMessage = "No data assets found for this wallet."

// Server serves the asset list and drives the share flow.
type Server struct {
	assets  *market.Client
	flow    *share.Flow
	chainID int64
	logger  *log.Logger

	// lastGood keeps the last successfully fetched asset list per
	// wallet. A failed refresh re-renders this instead of surfacing an
	// error to the user.
	mu       sync.Mutex
	lastGood map[string][]domain.AssetRecord
}

// ServerOptions contains configuration for creating a Server.
type ServerOptions struct {
	Assets  *market.Client
	Flow    *share.Flow
	ChainID int64
	Logger  *log.Logger
}

// NewServer creates a web server for the market UI.
func NewServer(opts ServerOptions) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &Server{
		assets:   opts.Assets,
		flow:     opts.Flow,
		chainID:  opts.ChainID,
		logger:   logger,
		lastGood: make(map[string][]domain.AssetRecord),
	}
}

// Router builds the gin engine with all routes registered.
func (s *Server) Router() *gin.Engine {
	tmpl := template.Must(template.ParseFS(templatesFS, "templates/*.tmpl"))

	router := gin.New()
	router.Use(gin.Recovery())
	router.SetHTMLTemplate(tmpl)

	router.GET("/assets/:wallet", s.handleAssets)
	router.POST("/share/open", s.handleShareOpen)
	router.POST("/share/select", s.handleShareSelect)
	router.POST("/share/confirm", s.handleShareConfirm)
	router.POST("/share/close", s.handleShareClose)
	router.GET("/share/status", s.handleShareStatus)
	router.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})

	return router
}

// assetsView is the template model for the asset list page.
type assetsView struct {
	Wallet       string
	Assets       []domain.AssetRecord
	EmptyMessage string
	Share        shareView
}

// handleAssets renders the wallet's asset cards in the order received,
// or the empty-state message when the index has nothing. A fetch failure
// is logged and the prior state is rendered unchanged, without an error
// banner.
func (s *Server) handleAssets(c *gin.Context) {
	wallet := c.Param("wallet")

	start := time.Now()
	assets, err := s.assets.UserAssets(c.Request.Context(), wallet, s.chainID)
	if err != nil {
		observability.RecordAssetFetch("error", time.Since(start).Seconds())
		s.logger.Printf("asset fetch for %s failed: %v", wallet, err)

		s.mu.Lock()
		assets = s.lastGood[wallet]
		s.mu.Unlock()
	} else {
		status := "ok"
		if len(assets) == 0 {
			status = "empty"
		}
		observability.RecordAssetFetch(status, time.Since(start).Seconds())

		s.mu.Lock()
		s.lastGood[wallet] = assets
		s.mu.Unlock()
	}

	view := assetsView{
		Wallet: wallet,
		Assets: assets,
		Share:  newShareView(s.flow.Snapshot()),
	}
	if len(assets) == 0 {
		view.EmptyMessage = EmptyStateMessage
	}
	observability.RecordAssetsRendered(len(assets))

	c.HTML(http.StatusOK, "assets.tmpl", view)
}

type shareOpenRequest struct {
	NFT       string `json:"nft" binding:"required"`
	Datatoken string `json:"datatoken" binding:"required"`
}

func (s *Server) handleShareOpen(c *gin.Context) {
	var req shareOpenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !common.IsHexAddress(req.NFT) || !common.IsHexAddress(req.Datatoken) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid address"})
		return
	}

	if err := s.flow.Open(common.HexToAddress(req.NFT), common.HexToAddress(req.Datatoken)); err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, s.statusBody())
}

type shareSelectRequest struct {
	Address string `json:"address" binding:"required"`
}

func (s *Server) handleShareSelect(c *gin.Context) {
	var req shareSelectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !common.IsHexAddress(req.Address) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid address"})
		return
	}

	if err := s.flow.SelectFriend(common.HexToAddress(req.Address)); err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, s.statusBody())
}

// handleShareConfirm submits the mint. The mint error, if any, is already
// reflected in the flow status; the response mirrors that status so the
// dialog can render waiting, success or the raw failure message.
func (s *Server) handleShareConfirm(c *gin.Context) {
	if err := s.flow.Confirm(c.Request.Context()); err != nil {
		switch err {
		case share.ErrNoSelection, share.ErrSubmitting:
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusOK, s.statusBody())
		}
		return
	}
	c.JSON(http.StatusOK, s.statusBody())
}

func (s *Server) handleShareClose(c *gin.Context) {
	s.flow.Close()
	c.JSON(http.StatusOK, s.statusBody())
}

func (s *Server) handleShareStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.statusBody())
}

// shareView is the JSON/template model of a flow snapshot.
type shareView struct {
	State         string       `json:"state"`
	SessionID     string       `json:"sessionId,omitempty"`
	NFT           string       `json:"nft,omitempty"`
	Datatoken     string       `json:"datatoken,omitempty"`
	Selected      string       `json:"selected,omitempty"`
	Status        string       `json:"status"`
	StatusMessage string       `json:"statusMessage,omitempty"`
	TxHash        string       `json:"txHash,omitempty"`
	CanConfirm    bool         `json:"canConfirm"`
	Friends       []friendView `json:"friends"`
}

type friendView struct {
	Address  string `json:"address"`
	Name     string `json:"name,omitempty"`
	Selected bool   `json:"selected"`
}

func newShareView(snap share.Snapshot) shareView {
	view := shareView{
		State:      snap.State.String(),
		SessionID:  snap.SessionID,
		Status:     snap.Status.String(),
		CanConfirm: snap.CanConfirm,
	}
	if snap.State != share.StateIdle {
		view.NFT = snap.NFT.Hex()
		view.Datatoken = snap.Datatoken.Hex()
	}
	if snap.Selected != nil {
		view.Selected = snap.Selected.Hex()
	}
	view.StatusMessage = snap.StatusMessage
	if snap.TxHash != (common.Hash{}) {
		view.TxHash = snap.TxHash.Hex()
	}
	for _, f := range snap.Friends {
		view.Friends = append(view.Friends, friendView{
			Address:  f.Address.Hex(),
			Name:     f.Name,
			Selected: snap.Selected != nil && *snap.Selected == f.Address,
		})
	}
	return view
}

func (s *Server) statusBody() shareView {
	return newShareView(s.flow.Snapshot())
}
