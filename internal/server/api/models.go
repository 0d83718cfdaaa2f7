package api

import (
	"time"

	"github.com/dmitrijs2005/authkeeper/internal/server/models"
	"github.com/dmitrijs2005/authkeeper/internal/server/services"
)

type registerRequest struct {
	Name           string `json:"name" binding:"required"`
	Email          string `json:"email" binding:"required"`
	Password       string `json:"password" binding:"required"`
	MarketingAgree bool   `json:"marketing_agree"`
}

type tokenRequest struct {
	Token string `json:"token" binding:"required"`
}

type loginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

// MarketingAgree is a pointer so that an explicit false passes the required
// check while an absent field is still rejected.
type updateMeRequest struct {
	Name           string `json:"name" binding:"required"`
	MarketingAgree *bool  `json:"marketing_agree" binding:"required"`
}

type changePasswordRequest struct {
	OldPassword string `json:"old_password" binding:"required"`
	NewPassword string `json:"new_password" binding:"required"`
}

type changeEmailRequest struct {
	NewEmail string `json:"new_email" binding:"required"`
}

type forgotPasswordRequest struct {
	Email string `json:"email" binding:"required"`
}

type resetPasswordRequest struct {
	Token       string `json:"token" binding:"required"`
	NewPassword string `json:"new_password" binding:"required"`
}

type newcomerResponse struct {
	UserID         string    `json:"user_id"`
	Name           string    `json:"name"`
	Email          string    `json:"email"`
	CreatedAt      time.Time `json:"created_at"`
	MarketingAgree bool      `json:"marketing_agree"`
}

func toNewcomerResponse(n *models.Newcomer) newcomerResponse {
	return newcomerResponse{
		UserID:         n.UserID.String(),
		Name:           n.Name,
		Email:          n.Email,
		CreatedAt:      n.CreatedAt,
		MarketingAgree: n.MarketingAgree,
	}
}

type userResponse struct {
	UserID         string    `json:"user_id"`
	Name           string    `json:"name"`
	Email          string    `json:"email"`
	CreatedAt      time.Time `json:"created_at"`
	VerifiedAt     time.Time `json:"verified_at"`
	Role           string    `json:"role"`
	MarketingAgree bool      `json:"marketing_agree"`
}

func toUserResponse(u *models.User) userResponse {
	return userResponse{
		UserID:         u.UserID.String(),
		Name:           u.Name,
		Email:          u.Email,
		CreatedAt:      u.CreatedAt,
		VerifiedAt:     u.VerifiedAt,
		Role:           string(u.Role),
		MarketingAgree: u.MarketingAgree,
	}
}

type tokenPairResponse struct {
	AccessToken      string    `json:"access_token"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshToken     string    `json:"refresh_token"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}

func toTokenPairResponse(p *services.TokenPair) tokenPairResponse {
	return tokenPairResponse{
		AccessToken:      p.AccessToken,
		AccessExpiresAt:  p.AccessExpiredAt,
		RefreshToken:     p.RefreshToken,
		RefreshExpiresAt: p.RefreshExpiredAt,
	}
}

type statusResponse struct {
	Status string `json:"status"`
}

var statusOK = statusResponse{Status: "ok"}

type errorResponse struct {
	Error string `json:"error"`
}
