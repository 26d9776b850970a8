package handler

import (
	"net/http"
	"time"

	"github.com/aman-churiwal/api-guard/internal/models"
	"github.com/aman-churiwal/api-guard/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type TokenHandler struct {
	service *service.TokenService
}

func NewTokenHandler(service *service.TokenService) *TokenHandler {
	return &TokenHandler{service: service}
}

func (h *TokenHandler) Create(c *gin.Context) {
	var req struct {
		Name          string   `json:"name" binding:"required"`
		Type          string   `json:"type"`
		Scopes        []string `json:"scopes"`
		ExpiresInDays int      `json:"expires_in_days"`
		RateLimit     int      `json:"rate_limit"`
		OwnerUserID   string   `json:"owner_user_id"`
		OwnerOrgID    string   `json:"owner_org_id"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if req.Type != "" && req.Type != models.TokenTypeBasic && req.Type != models.TokenTypeAdvanced {
		c.JSON(http.StatusBadRequest, gin.H{"error": "type must be basic or advanced"})
		return
	}

	params := service.CreateParams{
		Name:      req.Name,
		Type:      req.Type,
		Scopes:    req.Scopes,
		RateLimit: req.RateLimit,
	}

	if req.ExpiresInDays > 0 {
		expiresAt := time.Now().AddDate(0, 0, req.ExpiresInDays)
		params.ExpiresAt = &expiresAt
	}
	if req.OwnerUserID != "" {
		id, err := uuid.Parse(req.OwnerUserID)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid owner_user_id"})
			return
		}
		params.OwnerUserID = &id
	}
	if req.OwnerOrgID != "" {
		id, err := uuid.Parse(req.OwnerOrgID)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid owner_org_id"})
			return
		}
		params.OwnerOrgID = &id
	}

	ctx := c.Request.Context()
	secret, token, err := h.service.Create(ctx, params)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"token":   token,
		"secret":  secret,
		"message": "Save this secret - it won't be shown again",
	})
}

func (h *TokenHandler) List(c *gin.Context) {
	ctx := c.Request.Context()
	tokens, err := h.service.List(ctx)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, tokens)
}

func (h *TokenHandler) Get(c *gin.Context) {
	id := c.Param("id")

	ctx := c.Request.Context()
	token, err := h.service.Get(ctx, id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	if token == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Token not found"})
		return
	}

	c.JSON(http.StatusOK, token)
}

func (h *TokenHandler) Revoke(c *gin.Context) {
	id := c.Param("id")

	ctx := c.Request.Context()
	if err := h.service.Revoke(ctx, id); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Token revoked"})
}
