// README: Base handler utilities (JSON helpers, error mapping).
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"shuttle/internal/maps"
	"shuttle/internal/modules/driver"
	"shuttle/internal/modules/estimate"
	"shuttle/internal/modules/event"
	"shuttle/internal/modules/reservation"
	"shuttle/internal/modules/strategy"
)

type errorResponse struct {
	Error string `json:"error"`
}

// isValidID ensures IDs look like the UUIDs Postgres issues.
func isValidID(v string) bool {
	if len(v) == 0 || len(v) > 36 {
		return false
	}
	for _, c := range v {
		if (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || c == '-' {
			continue
		}
		return false
	}
	return true
}

func writeJSON(c *gin.Context, status int, v any) {
	c.JSON(status, v)
}

func writeError(c *gin.Context, status int, msg string) {
	writeJSON(c, status, errorResponse{Error: msg})
}

// writeDomainError maps module sentinels onto HTTP statuses. Anything
// unmapped is a 500 with the detail kept out of the response body.
func writeDomainError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, reservation.ErrNotFound),
		errors.Is(err, driver.ErrNotFound),
		errors.Is(err, event.ErrNotFound),
		errors.Is(err, strategy.ErrDriverNotFound):
		writeError(c, http.StatusNotFound, err.Error())
	case errors.Is(err, reservation.ErrTooFewStops),
		errors.Is(err, reservation.ErrEventStopReused),
		errors.Is(err, reservation.ErrEventStopPosition),
		errors.Is(err, reservation.ErrNoEventProperty),
		errors.Is(err, maps.ErrUnknownPlace),
		errors.Is(err, maps.ErrUnknownLegs):
		writeError(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, driver.ErrHasDriver),
		errors.Is(err, driver.ErrHasDest),
		errors.Is(err, driver.ErrNoVehicle),
		errors.Is(err, reservation.ErrHasPickup),
		errors.Is(err, reservation.ErrReservationsClosed),
		errors.Is(err, strategy.ErrReservationPickedUp),
		errors.Is(err, strategy.ErrNoDest),
		errors.Is(err, estimate.ErrNoDriverLocation):
		writeError(c, http.StatusConflict, err.Error())
	default:
		writeError(c, http.StatusInternalServerError, "internal error")
	}
}
