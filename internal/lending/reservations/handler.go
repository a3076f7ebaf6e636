package reservations

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"LIBRA-backend/internal/platform/auth"
)

type Handler struct{ svc *Service }

func RegisterRoutes(r gin.IRoutes, svc *Service) {
	h := &Handler{svc: svc}

	r.POST("/reservations", h.Reserve)
	r.DELETE("/reservations/:id", h.Cancel)
	r.GET("/reservations/my", h.ListMy)
}

func (h *Handler) Reserve(c *gin.Context) {
	var req ReserveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json or missing book_id"})
		return
	}

	res, err := h.svc.Reserve(c.Request.Context(), auth.UserID(c), req.BookID)
	if err != nil {
		c.JSON(ToHTTPStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, res)
}

func (h *Handler) Cancel(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid reservation id"})
		return
	}

	if err := h.svc.Cancel(c.Request.Context(), id, auth.UserID(c), auth.IsAdmin(c)); err != nil {
		c.JSON(ToHTTPStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "reservation cancelled"})
}

func (h *Handler) ListMy(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	items, total, err := h.svc.MyReservations(c.Request.Context(), auth.UserID(c), limit, offset)
	if err != nil {
		c.JSON(ToHTTPStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items, "total": total})
}
