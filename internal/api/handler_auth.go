package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Init handles POST /api/init: it idempotently ensures the admin identity
// exists and returns it.
func (h *Handler) Init(c *gin.Context) {
	admin, err := h.store.EnsureAdmin(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, admin)
}

type loginRequest struct {
	EmployeeID string `json:"employeeId" binding:"required"`
	Name       string `json:"name"`
	Role       string `json:"role" binding:"required"`
}

// Login handles POST /api/auth/login. Employees unknown to the system are
// registered on the spot when a display name is supplied.
func (h *Handler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user, err := h.store.Login(c.Request.Context(), req.EmployeeID, req.Name, req.Role)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}
