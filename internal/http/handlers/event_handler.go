// README: Event handlers: pool listing, pooled estimates and manual refresh.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"shuttle/internal/modules/estimate"
	"shuttle/internal/modules/reservation"
	"shuttle/internal/types"
)

type EventHandler struct {
	reservations *reservation.Service
	estimator    *estimate.Service
}

func NewEventHandler(reservations *reservation.Service, estimator *estimate.Service) *EventHandler {
	return &EventHandler{reservations: reservations, estimator: estimator}
}

// Pool lists the unassigned reservations waiting on a driver.
func (h *EventHandler) Pool(c *gin.Context) {
	eventID, ok := h.eventID(c)
	if !ok {
		return
	}
	pool, err := h.reservations.Pool(c.Request.Context(), eventID)
	if err != nil {
		writeDomainError(c, err)
		return
	}
	out := make([]any, 0, len(pool))
	for _, p := range pool {
		out = append(out, gin.H{"id": p.Detail.ID, "passengers": p.Detail.Passengers, "made_at": p.MadeAt})
	}
	writeJSON(c, http.StatusOK, gin.H{"reservations": out})
}

// Estimates returns the live event estimations with the pool speculatively
// assigned onto the online drivers.
func (h *EventHandler) Estimates(c *gin.Context) {
	eventID, ok := h.eventID(c)
	if !ok {
		return
	}
	est, err := h.reservations.PoolEstimates(c.Request.Context(), eventID)
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, est)
}

// Refresh forces the periodic ETA refresh for one event.
func (h *EventHandler) Refresh(c *gin.Context) {
	eventID, ok := h.eventID(c)
	if !ok {
		return
	}
	est, err := h.estimator.RefreshEvent(c.Request.Context(), eventID)
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, est)
}

func (h *EventHandler) eventID(c *gin.Context) (types.EventID, bool) {
	id := c.Param("event")
	if !isValidID(id) {
		writeError(c, http.StatusBadRequest, "invalid event id")
		return "", false
	}
	return types.EventID(id), true
}
