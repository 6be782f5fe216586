package api

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"parking-reservation-backend/internal/calendar"
	"parking-reservation-backend/internal/model"
)

// GetSpots handles GET /api/spots.
func (h *Handler) GetSpots(c *gin.Context) {
	spots, err := h.svc.Catalog().Spots(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, spots)
}

// GetAvailableSpots handles GET /api/spots/available?date=&slot=&charger=.
// date defaults to today and slot to FULL_DAY.
func (h *Handler) GetAvailableSpots(c *gin.Context) {
	date := h.svc.Today()
	if raw := c.Query("date"); raw != "" {
		d, err := calendar.ParseDate(raw)
		if err != nil {
			badRequest(c, err)
			return
		}
		date = d
	}

	slot := model.SlotFullDay
	if raw := c.Query("slot"); raw != "" {
		s, err := model.ParseSlot(raw)
		if err != nil {
			badRequest(c, err)
			return
		}
		slot = s
	}

	var charger bool
	if raw := c.Query("charger"); raw != "" {
		b, err := strconv.ParseBool(raw)
		if err != nil {
			badRequest(c, fmt.Errorf("invalid charger flag %q", raw))
			return
		}
		charger = b
	}

	spots, err := h.svc.Resolver().FindAvailableSpots(c.Request.Context(), date, slot, charger)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"date": date, "slot": slot, "spots": spots})
}
