package apperr

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/clinic/clinic/internal/platform/response"
)

// PostgreSQL SQLSTATE codes the translator understands.
const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
	pgNotNullViolation    = "23502"
	pgCheckViolation      = "23514"
	pgInvalidText         = "22P02"
	pgInvalidDatetime     = "22007"
	pgDatetimeOverflow    = "22008"
	pgNumericOverflow     = "22003"
	pgStringTooLong       = "22001"
	pgInvalidOffset       = "2201X"
	pgInvalidLimit        = "2201W"
)

const genericMessage = "internal server error"

// statusCoder is implemented by errors that carry their own HTTP status.
type statusCoder interface {
	StatusCode() int
}

// FromStore classifies a raw database error. Errors it does not recognise are
// returned unchanged.
func FromStore(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return Wrap(KindNotFound, "resource not found", err)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation:
			return Wrap(KindDuplicate, "duplicate entry", err)
		case pgForeignKeyViolation:
			return Wrap(KindConstraint, "constraint violation", err)
		case pgNotNullViolation, pgCheckViolation:
			return Wrap(KindConstraint, "constraint violation", err)
		case pgInvalidText, pgInvalidDatetime, pgDatetimeOverflow, pgNumericOverflow,
			pgStringTooLong, pgInvalidOffset, pgInvalidLimit:
			return Wrap(KindInvalidInput, "invalid input", err)
		}
	}
	return err
}

// Translate maps any error to a status code and an error envelope.
func Translate(err error) (int, response.Envelope) {
	err = FromStore(err)

	var ae *Error
	if errors.As(err, &ae) {
		msg := ae.Message
		if msg == "" {
			msg = ae.Kind.String()
		}
		if ae.Kind == KindUnknown {
			return http.StatusInternalServerError, response.NewError(genericMessage)
		}
		return ae.Kind.Status(), response.NewError(msg, ae.Fields...)
	}

	var he *echo.HTTPError
	if errors.As(err, &he) {
		if he.Code == http.StatusBadRequest {
			return he.Code, response.NewError("invalid input")
		}
		if he.Code >= http.StatusInternalServerError {
			return he.Code, response.NewError(genericMessage)
		}
		return he.Code, response.NewError(httpErrorMessage(he))
	}

	var sc statusCoder
	if errors.As(err, &sc) {
		status := sc.StatusCode()
		if status >= http.StatusBadRequest && status < http.StatusInternalServerError {
			return status, response.NewError(err.Error())
		}
		if status >= http.StatusInternalServerError {
			return status, response.NewError(genericMessage)
		}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return http.StatusGatewayTimeout, response.NewError("request timed out")
	}

	return http.StatusInternalServerError, response.NewError(genericMessage)
}

func httpErrorMessage(he *echo.HTTPError) string {
	switch m := he.Message.(type) {
	case string:
		return m
	case error:
		return m.Error()
	case nil:
		return http.StatusText(he.Code)
	default:
		return fmt.Sprint(m)
	}
}

// HTTPErrorHandler is installed as echo's error handler. It is the single
// place where returned errors become responses.
func HTTPErrorHandler(logger zerolog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		status, env := Translate(err)

		if status >= http.StatusInternalServerError {
			rid, _ := c.Get("request_id").(string)
			logger.Error().
				Err(err).
				Str("request_id", rid).
				Str("method", c.Request().Method).
				Str("path", c.Request().URL.Path).
				Int("status", status).
				Msg("request failed")
		}

		var writeErr error
		if c.Request().Method == http.MethodHead {
			writeErr = c.NoContent(status)
		} else {
			writeErr = c.JSON(status, env)
		}
		if writeErr != nil {
			logger.Error().Err(writeErr).Msg("failed to write error response")
		}
	}
}
