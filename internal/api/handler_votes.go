package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

// GetVotes handles GET /api/votes.
func (h *Handler) GetVotes(c *gin.Context) {
	votes, err := h.store.ListVotes(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, votes)
}

// GetVotesBySession handles GET /api/votes/session/:id.
func (h *Handler) GetVotesBySession(c *gin.Context) {
	sessionID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Invalid session ID"})
		return
	}

	votes, err := h.store.VotesForSession(c.Request.Context(), sessionID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, votes)
}

type createVoteRequest struct {
	SessionID int64  `json:"sessionId"`
	UserID    int64  `json:"userId"`
	UserName  string `json:"userName"`
	Type      string `json:"type"`
}

// CreateVote handles POST /api/votes. Validation failures and duplicate
// votes both come back as 400; the error message tells them apart.
func (h *Handler) CreateVote(c *gin.Context) {
	var req createVoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	vote, err := h.store.CastVote(c.Request.Context(), req.SessionID, req.UserID, req.UserName, req.Type)
	if err != nil {
		respondError(c, err)
		return
	}

	if h.collector != nil {
		h.collector.RecordVote(vote.Type)
	}
	c.JSON(http.StatusCreated, vote)
}
