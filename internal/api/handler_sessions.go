package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

// GetSessions handles GET /api/sessions, most recent first.
func (h *Handler) GetSessions(c *gin.Context) {
	sessions, err := h.store.ListSessions(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, sessions)
}

// GetActiveSession handles GET /api/sessions/active[?userId]. A non-admin
// userId always yields null, whatever the actual state: employees learn
// about sessions only through the vote-casting flow.
func (h *Handler) GetActiveSession(c *gin.Context) {
	var forUserID *int64
	if raw := c.Query("userId"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Invalid user ID"})
			return
		}
		forUserID = &id
	}

	session, err := h.store.ActiveSession(c.Request.Context(), forUserID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, session)
}

type startSessionRequest struct {
	UserID int64 `json:"userId" binding:"required"`
}

// StartSession handles POST /api/sessions/start (admin only). On success the
// worker pool announces the new session to push subscribers.
func (h *Handler) StartSession(c *gin.Context) {
	var req startSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	session, err := h.store.StartSession(c.Request.Context(), req.UserID)
	if err != nil {
		respondError(c, err)
		return
	}

	if h.pool != nil {
		h.pool.Dispatch(session.ID)
	}
	if h.collector != nil {
		h.collector.RecordSessionStarted()
	}
	c.JSON(http.StatusCreated, session)
}

// EndSession handles POST /api/sessions/:id/end. Ending an already-ended
// session is a no-op that still returns 200.
func (h *Handler) EndSession(c *gin.Context) {
	sessionID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Invalid session ID"})
		return
	}

	session, err := h.store.EndSession(c.Request.Context(), sessionID)
	if err != nil {
		respondError(c, err)
		return
	}

	if h.collector != nil {
		h.collector.RecordSessionEnded()
	}
	c.JSON(http.StatusOK, session)
}

// DeleteSession handles DELETE /api/sessions/:id?userId= (admin only).
// Votes belonging to the session are removed with it.
func (h *Handler) DeleteSession(c *gin.Context) {
	sessionID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Invalid session ID"})
		return
	}
	userID, err := strconv.ParseInt(c.Query("userId"), 10, 64)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Invalid user ID"})
		return
	}

	if err := h.store.DeleteSession(c.Request.Context(), sessionID, userID); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
