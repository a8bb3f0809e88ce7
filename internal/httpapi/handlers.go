// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tollgate Contributors

package httpapi

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/tollgate/tollgate/internal/auth"
)

const tokenType = "Bearer"

type registerRequest struct {
	Name                 string `json:"name" form:"name"`
	Email                string `json:"email" form:"email"`
	Password             string `json:"password" form:"password"`
	PasswordConfirmation string `json:"password_confirmation" form:"password_confirmation"`
}

type loginRequest struct {
	Email    string `json:"email" form:"email"`
	Password string `json:"password" form:"password"`
}

type forgotPasswordRequest struct {
	Email string `json:"email" form:"email"`
}

type resetPasswordRequest struct {
	Token                string `json:"token" form:"token"`
	Email                string `json:"email" form:"email"`
	Password             string `json:"password" form:"password"`
	PasswordConfirmation string `json:"password_confirmation" form:"password_confirmation"`
}

// userResponse is the public shape of a user.
type userResponse struct {
	ID              string     `json:"id"`
	Name            string     `json:"name"`
	Email           string     `json:"email"`
	EmailVerifiedAt *time.Time `json:"email_verified_at"`
	CreatedAt       time.Time  `json:"created_at"`
}

type authPayload struct {
	User      userResponse `json:"user"`
	Token     string       `json:"token"`
	TokenType string       `json:"token_type"`
}

type dataEnvelope struct {
	Data any `json:"data"`
}

type messageResponse struct {
	Message string `json:"message"`
}

func presentUser(u *auth.User) userResponse {
	out := userResponse{
		ID:        u.ID.String(),
		Name:      u.Name,
		Email:     u.Email,
		CreatedAt: u.CreatedAt.UTC().Truncate(time.Second),
	}
	if u.EmailVerifiedAt != nil {
		at := u.EmailVerifiedAt.UTC().Truncate(time.Second)
		out.EmailVerifiedAt = &at
	}
	return out
}

func presentAuth(u *auth.User, issued *auth.IssuedToken) dataEnvelope {
	return dataEnvelope{Data: authPayload{
		User:      presentUser(u),
		Token:     issued.Plaintext,
		TokenType: tokenType,
	}}
}

func (s *Server) handleUp(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleRegister(c echo.Context) error {
	var req registerRequest
	if err := c.Bind(&req); err != nil {
		return err
	}

	user, issued, err := s.auth.Register(c.Request().Context(), auth.RegisterInput{
		Name:                 req.Name,
		Email:                req.Email,
		Password:             req.Password,
		PasswordConfirmation: req.PasswordConfirmation,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, presentAuth(user, issued))
}

func (s *Server) handleLogin(c echo.Context) error {
	var req loginRequest
	if err := c.Bind(&req); err != nil {
		return err
	}

	user, issued, err := s.auth.Login(c.Request().Context(), auth.LoginInput{
		Email:    req.Email,
		Password: req.Password,
		ClientIP: c.RealIP(),
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, presentAuth(user, issued))
}

func (s *Server) handleUser(c echo.Context) error {
	return c.JSON(http.StatusOK, dataEnvelope{Data: presentUser(currentUser(c))})
}

// handleLegacyUser serves GET /api/user without the data envelope.
func (s *Server) handleLegacyUser(c echo.Context) error {
	return c.JSON(http.StatusOK, presentUser(currentUser(c)))
}

func (s *Server) handleLogout(c echo.Context) error {
	if err := s.auth.Logout(c.Request().Context(), currentToken(c)); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleLogoutAll(c echo.Context) error {
	if _, err := s.auth.LogoutAll(c.Request().Context(), currentUser(c).ID); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleForgotPassword(c echo.Context) error {
	var req forgotPasswordRequest
	if err := c.Bind(&req); err != nil {
		return err
	}
	if err := s.resets.RequestReset(c.Request().Context(), req.Email); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, messageResponse{Message: auth.MsgResetLinkSent})
}

func (s *Server) handleResetPassword(c echo.Context) error {
	var req resetPasswordRequest
	if err := c.Bind(&req); err != nil {
		return err
	}

	err := s.resets.ResetPassword(c.Request().Context(), auth.ResetInput{
		Email:                req.Email,
		Token:                req.Token,
		Password:             req.Password,
		PasswordConfirmation: req.PasswordConfirmation,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, messageResponse{Message: auth.MsgPasswordReset})
}
