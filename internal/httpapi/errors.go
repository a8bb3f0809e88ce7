// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tollgate Contributors

package httpapi

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/tollgate/tollgate/internal/auth"
	"github.com/tollgate/tollgate/pkg/errutil"
)

const codeTooManyRequests = "HTTP_TOO_MANY_REQUESTS"

// Response messages not owned by the auth package.
const (
	MsgTooManyRequests  = "Too many attempts. Please try again later."
	MsgNotFound         = "Resource not found."
	MsgMethodNotAllowed = "Method not allowed."
	MsgMalformedRequest = "The request body is malformed."
	MsgPayloadTooLarge  = "The request body is too large."
	MsgServerError      = "An error occurred while processing your request."
)

type validationResponse struct {
	Message string              `json:"message"`
	Errors  map[string][]string `json:"errors"`
}

// handleError renders every handler error as JSON.
func (s *Server) handleError(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	status, body := s.errorResponse(err)
	if status >= http.StatusInternalServerError {
		errutil.LogError(s.logger, "request failed", err)
	}

	var writeErr error
	if c.Request().Method == http.MethodHead {
		writeErr = c.NoContent(status)
	} else {
		writeErr = c.JSON(status, body)
	}
	if writeErr != nil {
		s.logger.Warn("failed to write error response", "error", writeErr)
	}
}

func (s *Server) errorResponse(err error) (int, any) {
	var he *echo.HTTPError
	if errors.As(err, &he) {
		switch {
		case he.Code == http.StatusNotFound:
			return http.StatusNotFound, messageResponse{Message: MsgNotFound}
		case he.Code == http.StatusMethodNotAllowed:
			return http.StatusMethodNotAllowed, messageResponse{Message: MsgMethodNotAllowed}
		case he.Code == http.StatusRequestEntityTooLarge:
			return he.Code, messageResponse{Message: MsgPayloadTooLarge}
		case he.Code >= 400 && he.Code < 500:
			return he.Code, messageResponse{Message: MsgMalformedRequest}
		}
	}

	switch errutil.Code(err) {
	case auth.CodeValidation:
		if v, ok := auth.AsValidationError(err); ok {
			return http.StatusUnprocessableEntity, validationResponse{Message: v.Error(), Errors: v.Fields()}
		}
	case auth.CodeUnauthenticated:
		return http.StatusUnauthorized, messageResponse{Message: auth.MsgUnauthenticated}
	case auth.CodeResetUserNotFound:
		return http.StatusBadRequest, messageResponse{Message: auth.MsgResetUserNotFound}
	case auth.CodeResetTokenInvalid:
		return http.StatusBadRequest, messageResponse{Message: auth.MsgResetTokenInvalid}
	case auth.CodeResetThrottled:
		return http.StatusBadRequest, messageResponse{Message: auth.MsgResetThrottled}
	case codeTooManyRequests:
		return http.StatusTooManyRequests, messageResponse{Message: MsgTooManyRequests}
	}

	msg := MsgServerError
	if s.debug {
		msg = err.Error()
	}
	return http.StatusInternalServerError, messageResponse{Message: msg}
}
