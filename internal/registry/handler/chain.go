package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/jmerrifield20/bharatchain/internal/ledger"
	"go.uber.org/zap"
)

// ChainHandler exposes read-only HTTP endpoints for the block chain.
type ChainHandler struct {
	ledger ledger.Ledger
	logger *zap.Logger
}

// NewChainHandler creates a new ChainHandler.
func NewChainHandler(l ledger.Ledger, logger *zap.Logger) *ChainHandler {
	return &ChainHandler{ledger: l, logger: logger}
}

// Register mounts the chain routes on the given router group.
func (h *ChainHandler) Register(rg *gin.RouterGroup) {
	g := rg.Group("/chain")
	{
		g.GET("/blocks", h.ListBlocks)
		g.GET("/blocks/:hash", h.GetBlock)
		g.GET("/verify", h.Verify)
	}
}

// ListBlocks handles GET /chain/blocks?offset=&limit=. Without a limit every
// block is returned.
func (h *ChainHandler) ListBlocks(c *gin.Context) {
	offset, err := queryInt(c, "offset", 0)
	if err != nil {
		badRequest(c, err)
		return
	}
	limit, err := queryInt(c, "limit", 0)
	if err != nil {
		badRequest(c, err)
		return
	}

	blocks, err := h.ledger.GetAllBlocks(c.Request.Context())
	if err != nil {
		respondError(c, h.logger, "list blocks", err)
		return
	}

	total := len(blocks)
	if offset > total {
		offset = total
	}
	blocks = blocks[offset:]
	if limit > 0 && limit < len(blocks) {
		blocks = blocks[:limit]
	}
	c.JSON(http.StatusOK, gin.H{
		"total":  total,
		"blocks": blocks,
	})
}

// GetBlock handles GET /chain/blocks/:hash.
func (h *ChainHandler) GetBlock(c *gin.Context) {
	b, err := h.ledger.GetBlock(c.Request.Context(), c.Param("hash"))
	if err != nil {
		respondError(c, h.logger, "get block", err)
		return
	}
	c.JSON(http.StatusOK, b)
}

// Verify handles GET /chain/verify. It walks the full chain and reports integrity.
func (h *ChainHandler) Verify(c *gin.Context) {
	err := ledger.VerifyChain(c.Request.Context(), h.ledger)
	var integrity *ledger.IntegrityError
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"valid": true})
	case errors.As(err, &integrity):
		h.logger.Warn("chain integrity check failed", zap.Error(err))
		c.JSON(http.StatusOK, gin.H{
			"valid": false,
			"error": err.Error(),
		})
	default:
		respondError(c, h.logger, "verify chain", err)
	}
}

func queryInt(c *gin.Context, name string, def int) (int, error) {
	s := c.Query(name)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, errors.New(name + " must be a non-negative integer")
	}
	return n, nil
}
