// Package api exposes the account-management service over HTTP/JSON.
// It is a thin boundary: request decoding, bearer-token auth, and a single
// error-to-status mapping; all business rules live in the services package.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/dmitrijs2005/authkeeper/internal/logging"
	"github.com/dmitrijs2005/authkeeper/internal/server/mail"
	"github.com/dmitrijs2005/authkeeper/internal/server/models"
	"github.com/dmitrijs2005/authkeeper/internal/server/services"
)

const shutdownTimeout = 5 * time.Second

// IdentityService is the part of the identity service the boundary uses.
type IdentityService interface {
	RegisterNewcomer(ctx context.Context, name, email, password string, marketingAgree bool) (*models.Newcomer, string, error)
	VerifyNewcomer(ctx context.Context, tokenString string) (*models.User, error)
	UpdateUserInfo(ctx context.Context, userID uuid.UUID, name string, marketingAgree bool) (*models.User, error)
	ChangePassword(ctx context.Context, userID uuid.UUID, oldPassword, newPassword string) error
	RequestEmailChange(ctx context.Context, userID uuid.UUID, newEmail string) (string, error)
	VerifyEmailChange(ctx context.Context, tokenString string) (*models.User, error)
	RequestPasswordReset(ctx context.Context, email string) (string, *models.User, error)
	ResetPassword(ctx context.Context, tokenString, newPassword string) error
	GetUserByID(ctx context.Context, userID uuid.UUID) (*models.User, error)
	IsPasswordAcceptable(password string) bool
}

// SessionService is the part of the session service the boundary uses.
type SessionService interface {
	Login(ctx context.Context, email, password string) (*services.TokenPair, error)
	Logout(ctx context.Context, accessTokenString string) error
	Refresh(ctx context.Context, refreshTokenString string) (*services.TokenPair, error)
	GetUserByAccessToken(ctx context.Context, accessTokenString string) (*models.User, error)
}

// MailEnqueuer schedules outbound account emails.
type MailEnqueuer interface {
	Enqueue(msg mail.Message)
}

// Pinger reports store reachability; satisfied by *sql.DB.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Server is the HTTP boundary of the service.
type Server struct {
	addr     string
	identity IdentityService
	sessions SessionService
	mailer   MailEnqueuer
	store    Pinger
	logger   logging.Logger
	engine   *gin.Engine
}

// NewServer wires the routes and returns a server ready to Run.
func NewServer(addr string, identity IdentityService, sessions SessionService, mailer MailEnqueuer, store Pinger, logger logging.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	s := &Server{
		addr:     addr,
		identity: identity,
		sessions: sessions,
		mailer:   mailer,
		store:    store,
		logger:   logger.With("component", "http"),
		engine:   gin.New(),
	}
	s.engine.Use(gin.Recovery())
	s.routes()
	return s
}

func (s *Server) routes() {
	s.engine.GET("/health", s.health)

	auth := s.engine.Group("/auth")
	auth.POST("/register", s.register)
	auth.POST("/register/verify", s.registerVerify)
	auth.POST("/login", s.login)
	auth.POST("/tokens/refresh", s.refresh)
	auth.POST("/email/verify", s.verifyEmailChange)
	auth.POST("/password/forgot", s.forgotPassword)
	auth.POST("/password/reset", s.resetPassword)

	me := auth.Group("/users/me", s.authRequired())
	me.GET("", s.getMe)
	me.PATCH("", s.updateMe)
	me.POST("/password", s.changePassword)
	me.POST("/email", s.requestEmailChange)

	auth.POST("/logout", s.authRequired(), s.logout)
	auth.GET("/users/:id", s.authRequired(), s.adminRequired(), s.getUser)
}

// Handler exposes the routing tree, used by tests and by Run.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves HTTP until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{Addr: s.addr, Handler: s.engine}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	s.logger.Info(ctx, "http server started", "addr", s.addr)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func (s *Server) health(c *gin.Context) {
	if err := s.store.PingContext(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, errorResponse{Error: "store unavailable"})
		return
	}
	c.JSON(http.StatusOK, statusOK)
}
