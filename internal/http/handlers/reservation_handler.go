// README: Reservation handlers: create, cancel and the estimate family.
package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"shuttle/internal/http/middleware"
	"shuttle/internal/modules/reservation"
	"shuttle/internal/types"
)

type ReservationHandler struct {
	reservations *reservation.Service
}

func NewReservationHandler(svc *reservation.Service) *ReservationHandler {
	return &ReservationHandler{reservations: svc}
}

type stopRequest struct {
	// Event marks a stop at the event property; the location fields are
	// ignored when set.
	Event   bool    `json:"event"`
	Lat     float64 `json:"lat"`
	Lng     float64 `json:"lng"`
	PlaceID string  `json:"place_id"`
	Address string  `json:"address"`
}

type createRequest struct {
	// Phone is the reserver's number; the verified token claim wins when
	// auth is enabled.
	Phone      string        `json:"phone"`
	Passengers int           `json:"passengers"`
	Stops      []stopRequest `json:"stops"`
}

func (r createRequest) form() reservation.Form {
	form := reservation.Form{Passengers: r.Passengers}
	for _, s := range r.Stops {
		if s.Event {
			form.Stops = append(form.Stops, reservation.FormStop{})
			continue
		}
		form.Stops = append(form.Stops, reservation.FormStop{Location: &reservation.FormStopLocation{
			Coords:  types.LatLng{Lat: s.Lat, Lng: s.Lng},
			PlaceID: s.PlaceID,
			Address: s.Address,
		}})
	}
	return form
}

func (h *ReservationHandler) Create(c *gin.Context) {
	eventID := c.Param("event")
	if !isValidID(eventID) {
		writeError(c, http.StatusBadRequest, "invalid event id")
		return
	}
	var req createRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid body")
		return
	}
	phone := req.Phone
	if p := middleware.CallerPhone(c); p != "" {
		phone = p
	}
	if phone == "" {
		writeError(c, http.StatusBadRequest, "missing phone")
		return
	}
	if req.Passengers < 1 {
		writeError(c, http.StatusBadRequest, "passengers must be positive")
		return
	}
	res, err := h.reservations.Create(c.Request.Context(), phone, types.EventID(eventID), req.form())
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, res)
}

func (h *ReservationHandler) Get(c *gin.Context) {
	id := c.Param("id")
	if !isValidID(id) {
		writeError(c, http.StatusBadRequest, "invalid reservation id")
		return
	}
	res, err := h.reservations.Get(c.Request.Context(), types.ReservationID(id))
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, res)
}

type cancelRequest struct {
	Reason *int `json:"reason"`
}

func (h *ReservationHandler) Cancel(c *gin.Context) {
	id := c.Param("id")
	if !isValidID(id) {
		writeError(c, http.StatusBadRequest, "invalid reservation id")
		return
	}
	var req cancelRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			writeError(c, http.StatusBadRequest, "invalid body")
			return
		}
	}
	res, err := h.reservations.Cancel(c.Request.Context(), types.ReservationID(id), req.Reason)
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, res)
}

func (h *ReservationHandler) Estimate(c *gin.Context) {
	id := c.Param("id")
	if !isValidID(id) {
		writeError(c, http.StatusBadRequest, "invalid reservation id")
		return
	}
	res, err := h.reservations.Get(c.Request.Context(), types.ReservationID(id))
	if err != nil {
		writeDomainError(c, err)
		return
	}
	est, err := h.reservations.Estimate(c.Request.Context(), res)
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, est)
}

// EstimateNew quotes a ride that has not been booked yet.
func (h *ReservationHandler) EstimateNew(c *gin.Context) {
	eventID := c.Param("event")
	if !isValidID(eventID) {
		writeError(c, http.StatusBadRequest, "invalid event id")
		return
	}
	var req createRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid body")
		return
	}
	if req.Passengers < 1 {
		req.Passengers = 1
	}
	est, err := h.reservations.EstimateNew(c.Request.Context(), types.EventID(eventID), req.form())
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, est)
}

// EstimateCampus quotes the standing campus-to-event ride for a fixed
// campus point given by query coordinates.
func (h *ReservationHandler) EstimateCampus(c *gin.Context) {
	eventID := c.Param("event")
	if !isValidID(eventID) {
		writeError(c, http.StatusBadRequest, "invalid event id")
		return
	}
	lat, errLat := strconv.ParseFloat(c.Query("lat"), 64)
	lng, errLng := strconv.ParseFloat(c.Query("lng"), 64)
	if errLat != nil || errLng != nil {
		writeError(c, http.StatusBadRequest, "invalid coordinates")
		return
	}
	label := c.Query("label")
	est, err := h.reservations.EstimateCampus(c.Request.Context(), types.EventID(eventID), types.LatLng{Lat: lat, Lng: lng}, label)
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, est)
}
