package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/dmitrijs2005/authkeeper/internal/common"
	"github.com/dmitrijs2005/authkeeper/internal/server/mail"
)

func (s *Server) abortWithError(c *gin.Context, err error) {
	status, msg := statusForError(err)
	if status == http.StatusInternalServerError {
		s.logger.Error(c.Request.Context(), "request failed", "path", c.FullPath(), "error", err)
	}
	c.AbortWithStatusJSON(status, errorResponse{Error: msg})
}

func (s *Server) register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	if !s.identity.IsPasswordAcceptable(req.Password) {
		s.abortWithError(c, common.ErrorWeakPassword)
		return
	}

	newcomer, token, err := s.identity.RegisterNewcomer(c.Request.Context(), req.Name, req.Email, req.Password, req.MarketingAgree)
	if err != nil {
		s.abortWithError(c, err)
		return
	}

	s.mailer.Enqueue(mail.Message{Recipient: newcomer.Email, Kind: mail.KindRegisterVerify, Token: token})
	c.JSON(http.StatusCreated, toNewcomerResponse(newcomer))
}

func (s *Server) registerVerify(c *gin.Context) {
	var req tokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	user, err := s.identity.VerifyNewcomer(c.Request.Context(), req.Token)
	if err != nil {
		s.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, toUserResponse(user))
}

func (s *Server) login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	pair, err := s.sessions.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		s.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, toTokenPairResponse(pair))
}

func (s *Server) logout(c *gin.Context) {
	if err := s.sessions.Logout(c.Request.Context(), currentAccessToken(c)); err != nil {
		s.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, statusOK)
}

func (s *Server) refresh(c *gin.Context) {
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	pair, err := s.sessions.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		s.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, toTokenPairResponse(pair))
}

func (s *Server) getMe(c *gin.Context) {
	c.JSON(http.StatusOK, toUserResponse(currentUser(c)))
}

func (s *Server) updateMe(c *gin.Context) {
	var req updateMeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	user, err := s.identity.UpdateUserInfo(c.Request.Context(), currentUser(c).UserID, req.Name, *req.MarketingAgree)
	if err != nil {
		s.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, toUserResponse(user))
}

func (s *Server) changePassword(c *gin.Context) {
	var req changePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	if !s.identity.IsPasswordAcceptable(req.NewPassword) {
		s.abortWithError(c, common.ErrorWeakPassword)
		return
	}

	if err := s.identity.ChangePassword(c.Request.Context(), currentUser(c).UserID, req.OldPassword, req.NewPassword); err != nil {
		s.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, statusOK)
}

func (s *Server) requestEmailChange(c *gin.Context) {
	var req changeEmailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	token, err := s.identity.RequestEmailChange(c.Request.Context(), currentUser(c).UserID, req.NewEmail)
	if err != nil {
		s.abortWithError(c, err)
		return
	}

	s.mailer.Enqueue(mail.Message{Recipient: req.NewEmail, Kind: mail.KindChangeEmail, Token: token})
	c.JSON(http.StatusOK, statusOK)
}

func (s *Server) verifyEmailChange(c *gin.Context) {
	var req tokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	user, err := s.identity.VerifyEmailChange(c.Request.Context(), req.Token)
	if err != nil {
		s.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, toUserResponse(user))
}

// forgotPassword always answers 200. Whether the email is registered, or
// the account already has the maximum of outstanding reset tokens, must not
// be observable from the response.
func (s *Server) forgotPassword(c *gin.Context) {
	var req forgotPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	token, user, err := s.identity.RequestPasswordReset(c.Request.Context(), req.Email)
	if err != nil {
		if !errors.Is(err, common.ErrorUserNotExists) && !errors.Is(err, common.ErrorTooManyPasswordTokens) {
			s.abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, statusOK)
		return
	}

	s.mailer.Enqueue(mail.Message{Recipient: user.Email, Kind: mail.KindResetPassword, Token: token})
	c.JSON(http.StatusOK, statusOK)
}

func (s *Server) resetPassword(c *gin.Context) {
	var req resetPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	if !s.identity.IsPasswordAcceptable(req.NewPassword) {
		s.abortWithError(c, common.ErrorWeakPassword)
		return
	}

	if err := s.identity.ResetPassword(c.Request.Context(), req.Token, req.NewPassword); err != nil {
		s.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, statusOK)
}

func (s *Server) getUser(c *gin.Context) {
	userID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, errorResponse{Error: "invalid user id"})
		return
	}

	user, err := s.identity.GetUserByID(c.Request.Context(), userID)
	if err != nil {
		s.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, toUserResponse(user))
}
