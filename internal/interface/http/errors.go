package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	userapp "github.com/oksasatya/go-membership-affiliate/internal/application"
	"github.com/oksasatya/go-membership-affiliate/internal/domain/entity"
	"github.com/oksasatya/go-membership-affiliate/internal/interface/middleware"
	"github.com/oksasatya/go-membership-affiliate/pkg/response"
	"github.com/oksasatya/go-membership-affiliate/pkg/validation"
)

// writeError maps service and domain errors onto response envelopes.
// Anything unrecognised is logged and reported as a 500.
func writeError(c *gin.Context, logger *logrus.Logger, err error) {
	var ve *entity.ValidationError
	switch {
	case errors.As(err, &ve):
		response.Error[any](c, http.StatusBadRequest, "invalid payload", ve.Fields)
	case errors.Is(err, entity.ErrDuplicateEmail):
		response.Error[any](c, http.StatusConflict, "email already registered", map[string]string{"email": "already registered"})
	case errors.Is(err, entity.ErrDuplicateReferralCode):
		response.Error[any](c, http.StatusConflict, "could not allocate referral code", nil)
	case errors.Is(err, userapp.ErrRoleNotAllowed):
		response.Error[any](c, http.StatusBadRequest, "invalid payload", map[string]string{"role": "must be one of: member, affiliate"})
	case errors.Is(err, userapp.ErrInvalidCredentials):
		response.Error[any](c, http.StatusUnauthorized, "invalid credentials", nil)
	case errors.Is(err, entity.ErrResetTokenInvalid), errors.Is(err, entity.ErrResetTokenExpired),
		errors.Is(err, userapp.ErrVerifyTokenInvalid):
		response.Error[any](c, http.StatusBadRequest, "invalid or expired token", nil)
	case errors.Is(err, userapp.ErrUserNotFound):
		response.Error[any](c, http.StatusNotFound, "user not found", nil)
	case errors.Is(err, userapp.ErrStorageDisabled), errors.Is(err, userapp.ErrSearchUnavailable),
		errors.Is(err, userapp.ErrVerificationUnavailable):
		response.Error[any](c, http.StatusServiceUnavailable, err.Error(), nil)
	default:
		if logger != nil {
			logger.WithError(err).WithField("path", c.FullPath()).Error("request failed")
		}
		response.Error[any](c, http.StatusInternalServerError, "internal error", nil)
	}
}

// bindJSON decodes and validates the body into dst, writing a 400 with the
// field map when that fails.
func bindJSON(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		response.Error[any](c, http.StatusBadRequest, "invalid payload", validation.ToDetails(err))
		return false
	}
	return true
}

func requestMeta(c *gin.Context) userapp.RequestMeta {
	return userapp.RequestMeta{IP: middleware.ClientIP(c), UserAgent: c.GetHeader("User-Agent")}
}

func userView(u *entity.User) gin.H {
	return gin.H{
		"id":                   u.ID,
		"email":                u.Email,
		"role":                 u.Role,
		"referral_code":        u.ReferralCode,
		"avatar_url":           u.AvatarURL,
		"is_approved":          u.IsApproved,
		"is_verified":          u.IsVerified,
		"has_complete_profile": u.HasCompleteProfile,
		"created_at":           u.CreatedAt,
		"updated_at":           u.UpdatedAt,
	}
}
