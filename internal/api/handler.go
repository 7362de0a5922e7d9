package api

import (
	"errors"
	"net/http"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"

	"github.com/tilakp839-oss/chaiii/internal/metrics"
	"github.com/tilakp839-oss/chaiii/internal/model"
	"github.com/tilakp839-oss/chaiii/internal/notification"
	"github.com/tilakp839-oss/chaiii/internal/store"
)

// Handler holds shared dependencies for API handlers.
type Handler struct {
	store     store.Store
	webpush   *webpush.Options
	pool      *notification.WorkerPool
	collector *metrics.Collector
}

// NewHandler creates a new API handler. pool and collector may be nil.
func NewHandler(s store.Store, webpushOptions *webpush.Options, pool *notification.WorkerPool, collector *metrics.Collector) *Handler {
	return &Handler{
		store:     s,
		webpush:   webpushOptions,
		pool:      pool,
		collector: collector,
	}
}

// respondError maps a store failure to an HTTP status and error body.
func respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, model.ErrInvalidArgument), errors.Is(err, model.ErrDuplicateVote):
		status = http.StatusBadRequest
	case errors.Is(err, model.ErrUnauthorized):
		status = http.StatusUnauthorized
	case errors.Is(err, model.ErrForbidden):
		status = http.StatusForbidden
	case errors.Is(err, model.ErrNotFound):
		status = http.StatusNotFound
	}
	c.AbortWithStatusJSON(status, gin.H{"error": err.Error()})
}
