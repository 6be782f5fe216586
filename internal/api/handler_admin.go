package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// GetReservationHistory handles GET /api/admin/reservations?startDate=&endDate=&status=.
func (h *Handler) GetReservationHistory(c *gin.Context) {
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

	views, err := h.svc.History(c.Request.Context(), from, to, c.Query("status"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, views)
}

// AdminModifyReservation handles PUT /api/admin/reservations/:id.
func (h *Handler) AdminModifyReservation(c *gin.Context) {
	h.modify(c, true)
}

type adminCancelRequest struct {
	Reason string `json:"reason" binding:"required"`
}

// AdminCancelReservation handles DELETE /api/admin/reservations/:id.
func (h *Handler) AdminCancelReservation(c *gin.Context) {
	var req adminCancelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	r, err := h.svc.CancelAsAdmin(c.Request.Context(), currentUser(c).ID, c.Param("id"), req.Reason)
	if err != nil {
		respondError(c, err)
		return
	}
	h.respondView(c, http.StatusOK, r)
}
