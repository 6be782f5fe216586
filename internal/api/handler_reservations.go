package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"parking-reservation-backend/internal/calendar"
	"parking-reservation-backend/internal/model"
	"parking-reservation-backend/internal/reservation"
)

type createReservationRequest struct {
	StartDate               string `json:"startDate" binding:"required"`
	EndDate                 string `json:"endDate"`
	TimeSlot                string `json:"timeSlot" binding:"required"`
	SpotID                  string `json:"spotId"`
	RequiresElectricCharger bool   `json:"requiresElectricCharger"`
}

func (r createReservationRequest) toCreate(actorID, userID string) (reservation.CreateRequest, error) {
	start, err := calendar.ParseDate(r.StartDate)
	if err != nil {
		return reservation.CreateRequest{}, err
	}
	end, err := optionalDate(r.EndDate)
	if err != nil {
		return reservation.CreateRequest{}, err
	}
	slot, err := model.ParseSlot(r.TimeSlot)
	if err != nil {
		return reservation.CreateRequest{}, err
	}
	var spot string
	if r.SpotID != "" {
		if spot, err = spotID(r.SpotID); err != nil {
			return reservation.CreateRequest{}, err
		}
	}
	return reservation.CreateRequest{
		ActorID:         actorID,
		UserID:          userID,
		StartDate:       start,
		EndDate:         end,
		Slot:            slot,
		SpotID:          spot,
		RequiresCharger: r.RequiresElectricCharger,
	}, nil
}

// CreateReservation handles POST /api/reservations.
func (h *Handler) CreateReservation(c *gin.Context) {
	user := currentUser(c)
	h.create(c, user.ID, user.ID)
}

// CreateReservationForUser handles POST /api/reservations/user/:userId.
func (h *Handler) CreateReservationForUser(c *gin.Context) {
	h.create(c, currentUser(c).ID, c.Param("userId"))
}

func (h *Handler) create(c *gin.Context, actorID, userID string) {
	var req createReservationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	create, err := req.toCreate(actorID, userID)
	if err != nil {
		badRequest(c, err)
		return
	}

	ctx := c.Request.Context()
	created, err := h.svc.Create(ctx, create)
	if err != nil && len(created) == 0 {
		respondError(c, err)
		return
	}

	views, viewErr := h.svc.Views(ctx, created)
	if viewErr != nil {
		respondError(c, viewErr)
		return
	}
	if err != nil {
		// Earlier days stay booked; report them with the failure.
		status, msg := errorStatus(c, err)
		c.JSON(status, gin.H{"error": msg, "created": views})
		return
	}
	c.JSON(http.StatusCreated, views)
}

// GetMyReservations handles GET /api/reservations/my[?startDate=&endDate=].
func (h *Handler) GetMyReservations(c *gin.Context) {
	from, err := optionalDate(c.Query("startDate"))
	if err != nil {
		badRequest(c, err)
		return
	}
	to, err := optionalDate(c.Query("endDate"))
	if err != nil {
		badRequest(c, err)
		return
	}

	views, err := h.svc.ListForUser(c.Request.Context(), currentUser(c).ID, from, to)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, views)
}

// GetMyActiveReservations handles GET /api/reservations/my/active.
func (h *Handler) GetMyActiveReservations(c *gin.Context) {
	views, err := h.svc.ListActiveForUser(c.Request.Context(), currentUser(c).ID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, views)
}

type checkInRequest struct {
	SpotID string `json:"spotId" binding:"required"`
}

// CheckIn handles POST /api/reservations/check-in.
func (h *Handler) CheckIn(c *gin.Context) {
	var req checkInRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	spot, err := spotID(req.SpotID)
	if err != nil {
		badRequest(c, err)
		return
	}

	ctx := c.Request.Context()
	r, err := h.svc.CheckIn(ctx, currentUser(c).ID, spot)
	if err != nil {
		respondError(c, err)
		return
	}
	h.respondView(c, http.StatusOK, r)
}

type modifyReservationRequest struct {
	SpotID *string `json:"spotId"`
	Date   *string `json:"date"`
}

func (r modifyReservationRequest) toModify(actorID, reservationID string, asAdmin bool) (reservation.ModifyRequest, error) {
	req := reservation.ModifyRequest{ActorID: actorID, AsAdmin: asAdmin, ReservationID: reservationID}
	if r.SpotID != nil {
		spot, err := spotID(*r.SpotID)
		if err != nil {
			return req, err
		}
		req.NewSpotID = &spot
	}
	if r.Date != nil {
		d, err := calendar.ParseDate(*r.Date)
		if err != nil {
			return req, err
		}
		req.NewDate = &d
	}
	return req, nil
}

// ModifyReservation handles PUT /api/reservations/:id.
func (h *Handler) ModifyReservation(c *gin.Context) {
	h.modify(c, false)
}

func (h *Handler) modify(c *gin.Context, asAdmin bool) {
	var body modifyReservationRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, err)
		return
	}
	req, err := body.toModify(currentUser(c).ID, c.Param("id"), asAdmin)
	if err != nil {
		badRequest(c, err)
		return
	}

	r, err := h.svc.Modify(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	h.respondView(c, http.StatusOK, r)
}

// CancelReservation handles DELETE /api/reservations/:id.
func (h *Handler) CancelReservation(c *gin.Context) {
	r, err := h.svc.Cancel(c.Request.Context(), currentUser(c).ID, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	h.respondView(c, http.StatusOK, r)
}

// CancelReservationGroup handles DELETE /api/reservations/group/:groupId.
func (h *Handler) CancelReservationGroup(c *gin.Context) {
	n, err := h.svc.CancelGroup(c.Request.Context(), currentUser(c).ID, c.Param("groupId"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"cancelled": n})
}

func (h *Handler) respondView(c *gin.Context, status int, r *model.Reservation) {
	v, err := h.svc.View(c.Request.Context(), r)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(status, v)
}
