package fines

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"LIBRA-backend/internal/platform/auth"
)

type Handler struct{ svc *Service }

func RegisterRoutes(r gin.IRoutes, svc *Service) {
	h := &Handler{svc: svc}

	r.GET("/fine-rule", h.GetRule)
	r.PUT("/fine-rule", auth.RequireRole(auth.RoleAdmin), h.UpdateRule)

	r.GET("/fines", auth.RequireRole(auth.RoleAdmin), h.List)
	r.GET("/fines/my", h.ListMy)
	r.GET("/fines/my/unpaid-amount", h.UnpaidAmount)
	r.POST("/fines/:id/pay", h.Pay)
	r.POST("/fines/:id/waive", auth.RequireRole(auth.RoleAdmin), h.Waive)
}

func (h *Handler) GetRule(c *gin.Context) {
	res, err := h.svc.CurrentRule(c.Request.Context())
	if err != nil {
		c.JSON(ToHTTPStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) UpdateRule(c *gin.Context) {
	var req UpdateRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json or missing required fields"})
		return
	}

	res, err := h.svc.UpdateRule(c.Request.Context(), req)
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
	if v := c.Query("status"); v != "" {
		f.Status = &v
	}

	items, total, err := h.svc.ListRecords(c.Request.Context(), f)
	if err != nil {
		c.JSON(ToHTTPStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items, "total": total})
}

func (h *Handler) ListMy(c *gin.Context) {
	var status *string
	if v := c.Query("status"); v != "" {
		status = &v
	}
	items, total, err := h.svc.ListMyRecords(c.Request.Context(), auth.UserID(c), status,
		parseIntDefault(c.Query("limit"), 20), parseIntDefault(c.Query("offset"), 0))
	if err != nil {
		c.JSON(ToHTTPStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items, "total": total})
}

func (h *Handler) UnpaidAmount(c *gin.Context) {
	sum, err := h.svc.UnpaidAmount(c.Request.Context(), auth.UserID(c))
	if err != nil {
		c.JSON(ToHTTPStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"unpaid_amount": sum.StringFixed(2)})
}

func (h *Handler) Pay(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid fine record id"})
		return
	}

	res, err := h.svc.Pay(c.Request.Context(), id, auth.UserID(c), auth.IsAdmin(c))
	if err != nil {
		c.JSON(ToHTTPStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) Waive(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid fine record id"})
		return
	}

	var req WaiveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json or missing reason"})
		return
	}

	res, err := h.svc.Waive(c.Request.Context(), id, auth.UserID(c), req.Reason)
	if err != nil {
		c.JSON(ToHTTPStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, res)
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
