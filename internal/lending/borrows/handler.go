package borrows

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"LIBRA-backend/internal/platform/auth"
)

type Handler struct{ svc *Service }

func RegisterRoutes(r gin.IRoutes, svc *Service) {
	h := &Handler{svc: svc}

	r.POST("/borrows", h.Borrow)
	r.POST("/borrows/:id/return", h.Return)
	r.POST("/borrows/:id/renew", h.Renew)
	r.POST("/borrows/:id/pay-fine", h.PayFine)
	r.GET("/borrows/my", h.ListMy)
	r.GET("/borrows/:id", h.Get)

	r.GET("/borrows", auth.RequireRole(auth.RoleAdmin), h.List)
}

func (h *Handler) Borrow(c *gin.Context) {
	var req BorrowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json or missing book_id"})
		return
	}

	res, err := h.svc.Borrow(c.Request.Context(), auth.UserID(c), req.BookID, req.Days)
	if err != nil {
		c.JSON(ToHTTPStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, res)
}

func (h *Handler) Return(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid borrow record id"})
		return
	}

	res, err := h.svc.Return(c.Request.Context(), id, auth.UserID(c), auth.IsAdmin(c))
	if err != nil {
		c.JSON(ToHTTPStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) Renew(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid borrow record id"})
		return
	}

	res, err := h.svc.Renew(c.Request.Context(), id, auth.UserID(c), auth.IsAdmin(c))
	if err != nil {
		c.JSON(ToHTTPStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) PayFine(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid borrow record id"})
		return
	}

	res, err := h.svc.PayFine(c.Request.Context(), id, auth.UserID(c), auth.IsAdmin(c))
	if err != nil {
		c.JSON(ToHTTPStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) Get(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid borrow record id"})
		return
	}

	res, err := h.svc.Get(c.Request.Context(), id, auth.UserID(c), auth.IsAdmin(c))
	if err != nil {
		c.JSON(ToHTTPStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) List(c *gin.Context) {
	f := RecordFilter{
		Limit:  parseIntDefault(c.Query("limit"), 20),
		Offset: parseIntDefault(c.Query("offset"), 0),
	}
	if v := c.Query("user_id"); v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			f.UserID = &id
		}
	}
	if v := c.Query("book_id"); v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			f.BookID = &id
		}
	}
	if v := c.Query("status"); v != "" {
		if st, err := strconv.Atoi(v); err == nil {
			f.Status = &st
		}
	}

	items, total, err := h.svc.List(c.Request.Context(), f)
	if err != nil {
		c.JSON(ToHTTPStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items, "total": total})
}

func (h *Handler) ListMy(c *gin.Context) {
	var status *int
	if v := c.Query("status"); v != "" {
		if st, err := strconv.Atoi(v); err == nil {
			status = &st
		}
	}

	items, total, err := h.svc.MyBorrows(c.Request.Context(), auth.UserID(c), status,
		parseIntDefault(c.Query("limit"), 20), parseIntDefault(c.Query("offset"), 0))
	if err != nil {
		c.JSON(ToHTTPStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items, "total": total})
}

func parseIntDefault(s string, d int) int {
	if s == "" {
		return d
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return d
	}
	return v
}
