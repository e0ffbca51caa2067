// README: Admin handlers: cache maintenance.
package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
)

// CacheStore is the slice of the strategy store admin operations touch.
type CacheStore interface {
	Clear(ctx context.Context) error
}

type AdminHandler struct {
	cache CacheStore
}

func NewAdminHandler(cache CacheStore) *AdminHandler {
	return &AdminHandler{cache: cache}
}

// ClearCache drops every cached strategy, estimate and location. Drivers
// re-enter the market on their next ping.
func (h *AdminHandler) ClearCache(c *gin.Context) {
	if err := h.cache.Clear(c.Request.Context()); err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"cleared": true})
}
