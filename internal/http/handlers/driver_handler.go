// README: Driver handlers: ping, accept, arrive, next, available reservation.
package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"shuttle/internal/http/middleware"
	"shuttle/internal/modules/driver"
	"shuttle/internal/types"
)

type DriverHandler struct {
	driver *driver.Service
}

func NewDriverHandler(svc *driver.Service) *DriverHandler {
	return &DriverHandler{driver: svc}
}

type pingRequest struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

func (h *DriverHandler) Ping(c *gin.Context) {
	eventID, driverID, ok := h.ids(c)
	if !ok {
		return
	}
	var req pingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid body")
		return
	}
	est, err := h.driver.Ping(c.Request.Context(), eventID, driverID, types.LatLng{Lat: req.Lat, Lng: req.Lng})
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, est)
}

// Find resolves the caller's driver record for an event by phone number.
// The verified token claim wins over the query parameter.
func (h *DriverHandler) Find(c *gin.Context) {
	eventID := c.Param("event")
	if !isValidID(eventID) {
		writeError(c, http.StatusBadRequest, "invalid event id")
		return
	}
	phone := middleware.CallerPhone(c)
	if phone == "" {
		phone = c.Query("phone")
	}
	if phone == "" {
		writeError(c, http.StatusBadRequest, "missing phone")
		return
	}
	d, err := h.driver.Find(c.Request.Context(), types.EventID(eventID), phone)
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, d)
}

func (h *DriverHandler) Accept(c *gin.Context) {
	driverID, ok := h.driverID(c)
	if !ok {
		return
	}
	resID := c.Param("reservation")
	if !isValidID(resID) {
		writeError(c, http.StatusBadRequest, "invalid reservation id")
		return
	}
	est, err := h.driver.Accept(c.Request.Context(), driverID, types.ReservationID(resID))
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, est)
}

func (h *DriverHandler) Arrive(c *gin.Context) {
	eventID, driverID, ok := h.ids(c)
	if !ok {
		return
	}
	est, err := h.driver.Arrive(c.Request.Context(), eventID, driverID)
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, est)
}

func (h *DriverHandler) Next(c *gin.Context) {
	eventID, driverID, ok := h.ids(c)
	if !ok {
		return
	}
	est, err := h.driver.Next(c.Request.Context(), eventID, driverID)
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, est)
}

func (h *DriverHandler) AvailableReservation(c *gin.Context) {
	eventID, driverID, ok := h.ids(c)
	if !ok {
		return
	}
	offer, err := h.driver.AvailableReservation(c.Request.Context(), eventID, driverID)
	if err != nil {
		writeDomainError(c, err)
		return
	}
	if offer == nil {
		writeJSON(c, http.StatusOK, gin.H{"reservation": nil})
		return
	}
	writeJSON(c, http.StatusOK, gin.H{
		"reservation": offer.Reservation,
		"stops":       offer.Stops,
	})
}

func (h *DriverHandler) ids(c *gin.Context) (types.EventID, types.DriverID, bool) {
	eventID := c.Param("event")
	if !isValidID(eventID) {
		writeError(c, http.StatusBadRequest, "invalid event id")
		return "", 0, false
	}
	driverID, ok := h.driverID(c)
	if !ok {
		return "", 0, false
	}
	return types.EventID(eventID), driverID, true
}

func (h *DriverHandler) driverID(c *gin.Context) (types.DriverID, bool) {
	n, err := strconv.Atoi(c.Param("driver"))
	if err != nil || n < 0 {
		writeError(c, http.StatusBadRequest, "invalid driver id")
		return 0, false
	}
	return types.DriverID(n), true
}
