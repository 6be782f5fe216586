package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"parking-reservation-backend/internal/model"
	"parking-reservation-backend/internal/store"
)

type putSubscriptionRequest struct {
	Endpoint string `json:"endpoint" binding:"required"`
	P256DH   string `json:"p256dh" binding:"required"`
	Auth     string `json:"auth" binding:"required"`
}

// PutSubscription creates or replaces a push subscription of the current user.
func (h *Handler) PutSubscription(c *gin.Context) {
	var req putSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	ctx := c.Request.Context()
	user := currentUser(c)
	existing, err := h.store.GetSubscription(ctx, req.Endpoint)
	switch {
	case err == nil && existing.Username != user.Username:
		c.JSON(http.StatusForbidden, gin.H{"error": "subscription belongs to another user"})
		return
	case err != nil && !errors.Is(err, store.ErrNotFound):
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	subscription := model.PushSubscription{
		Endpoint: req.Endpoint,
		Username: user.Username,
		P256DH:   req.P256DH,
		Auth:     req.Auth,
	}
	if err := h.store.PutSubscription(ctx, &subscription); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.Status(http.StatusCreated)
}

type deleteSubscriptionRequest struct {
	Endpoint string `json:"endpoint" binding:"required"`
}

// DeleteSubscription removes one of the current user's subscriptions.
func (h *Handler) DeleteSubscription(c *gin.Context) {
	var req deleteSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	ctx := c.Request.Context()
	sub, err := h.store.GetSubscription(ctx, req.Endpoint)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "subscription not found"})
		} else {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}
	if sub.Username != currentUser(c).Username {
		c.JSON(http.StatusForbidden, gin.H{"error": "subscription belongs to another user"})
		return
	}

	if err := h.store.DeleteSubscription(ctx, req.Endpoint); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.Status(http.StatusNoContent)
}

// rawQueryParam returns the value of key without URL decoding. Push
// endpoints are stored exactly as the browser reported them.
func rawQueryParam(rawQuery, key string) (string, bool) {
	for _, kv := range strings.Split(rawQuery, "&") {
		if strings.HasPrefix(kv, key+"=") {
			return kv[len(key)+1:], true
		}
	}
	return "", false
}

type subscriptionResponse struct {
	Endpoint  string    `json:"endpoint"`
	CreatedAt time.Time `json:"created_at"`
}

func toSubscriptionResponse(s model.PushSubscription) subscriptionResponse {
	return subscriptionResponse{Endpoint: s.Endpoint, CreatedAt: s.CreatedAt.UTC()}
}

// GetSubscription reports whether an endpoint is registered for the current
// user. Without an endpoint it lists all of them.
func (h *Handler) GetSubscription(c *gin.Context) {
	ctx := c.Request.Context()
	user := currentUser(c)

	raw, ok := rawQueryParam(c.Request.URL.RawQuery, "endpoint")
	if !ok {
		subs, err := h.store.ListSubscriptions(ctx, user.Username)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		out := make([]subscriptionResponse, 0, len(subs))
		for _, s := range subs {
			out = append(out, toSubscriptionResponse(s))
		}
		c.JSON(http.StatusOK, out)
		return
	}
	if raw == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "endpoint is required"})
		return
	}

	sub, err := h.store.GetSubscription(ctx, raw)
	if err != nil || sub.Username != user.Username {
		if err == nil || errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "subscription not found"})
		} else {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}

	c.JSON(http.StatusOK, toSubscriptionResponse(*sub))
}

// GetVAPIDPublicKey hands browsers the key they subscribe with. Without push
// delivery configured there is nothing to subscribe to.
func (h *Handler) GetVAPIDPublicKey(c *gin.Context) {
	if h.webpush == nil || h.webpush.VAPIDPublicKey == "" {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "push notifications are disabled"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"public_key": h.webpush.VAPIDPublicKey})
}
