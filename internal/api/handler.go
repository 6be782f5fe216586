package api

import (
	"errors"
	"log"
	"net/http"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"

	"parking-reservation-backend/internal/calendar"
	"parking-reservation-backend/internal/model"
	"parking-reservation-backend/internal/mw"
	"parking-reservation-backend/internal/parse"
	"parking-reservation-backend/internal/reservation"
	"parking-reservation-backend/internal/store"
)

// Handler holds shared dependencies for API handlers.
type Handler struct {
	svc     *reservation.Service
	store   store.Store
	webpush *webpush.Options
}

// NewHandler creates a new API handler.
func NewHandler(svc *reservation.Service, s store.Store, webpushOptions *webpush.Options) *Handler {
	return &Handler{
		svc:     svc,
		store:   s,
		webpush: webpushOptions,
	}
}

// errorStatus maps a service error to a status code and a message. Internal
// failures are logged and reported without detail.
func errorStatus(c *gin.Context, err error) (int, string) {
	var (
		be *reservation.BusinessError
		ce *reservation.ConcurrencyError
	)
	switch {
	case errors.Is(err, reservation.ErrNotOwner):
		return http.StatusForbidden, err.Error()
	case errors.Is(err, reservation.ErrReservationNotFound),
		errors.Is(err, reservation.ErrUserNotFound),
		errors.Is(err, reservation.ErrSpotNotFound):
		return http.StatusNotFound, err.Error()
	case errors.As(err, &be):
		return http.StatusBadRequest, err.Error()
	case errors.As(err, &ce):
		return http.StatusConflict, err.Error()
	default:
		log.Printf("%s %s failed: %v", c.Request.Method, c.FullPath(), err)
		return http.StatusInternalServerError, "internal error"
	}
}

func respondError(c *gin.Context, err error) {
	status, msg := errorStatus(c, err)
	c.JSON(status, gin.H{"error": msg})
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
}

// currentUser is set by mw.Identity on every route of the group.
func currentUser(c *gin.Context) *model.User {
	u, _ := mw.CurrentUser(c)
	return u
}

// optionalDate parses s, returning the zero Date for an empty string.
func optionalDate(s string) (calendar.Date, error) {
	if s == "" {
		return calendar.Date{}, nil
	}
	return calendar.ParseDate(s)
}

func spotID(raw string) (string, error) {
	p, err := parse.ParseSpotID(raw)
	if err != nil {
		return "", err
	}
	return p.ID(), nil
}
