package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/unipass-integrity-api/internal/middleware"
	"github.com/noah-isme/unipass-integrity-api/internal/models"
	appErrors "github.com/noah-isme/unipass-integrity-api/pkg/errors"
	"github.com/noah-isme/unipass-integrity-api/pkg/response"
)

func claimsFromContext(c *gin.Context) *models.JWTClaims {
	return middleware.Claims(c)
}

// actorFromContext returns the user id recorded as performed_by on ledger writes.
func actorFromContext(c *gin.Context) (string, bool) {
	claims := claimsFromContext(c)
	if claims == nil || claims.UserID == "" {
		response.Error(c, appErrors.ErrUnauthorized)
		return "", false
	}
	return claims.UserID, true
}

func bindJSON(c *gin.Context, dest interface{}, message string) bool {
	if err := c.ShouldBindJSON(dest); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, message))
		return false
	}
	return true
}

func respondOK(c *gin.Context, data interface{}) {
	response.JSON(c, http.StatusOK, data, nil, middleware.ExtractMeta(c))
}
