package api

import (
	"errors"
	"log/slog"
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/wayfarian/groupjourney/pkg/redaction"
	"github.com/wayfarian/groupjourney/pkg/services"
)

// errorBody is the JSON error shape named in spec §4.6: {error, message}
// plus whatever echo.NewHTTPError's Message carries.
type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// mapServiceError maps a pkg/services error kind to an HTTP status and the
// canonical {error,message} body (spec §7). Kinds that never propagate past
// the service layer (cache/bus/notifier failures) never reach here.
func mapServiceError(err error) *echo.HTTPError {
	kind := services.KindOf(err)
	status := statusForKind(kind)

	if status == http.StatusInternalServerError {
		slog.Error("unhandled service error", "error", err)
		return echo.NewHTTPError(status, errorBody{Error: string(services.KindServerError), Message: "internal server error"})
	}

	message := "request failed"
	var svcErr *services.Error
	if errors.As(err, &svcErr) {
		message = redaction.New().Redact(svcErr.Message)
	}
	return echo.NewHTTPError(status, errorBody{Error: string(kind), Message: message})
}

func statusForKind(kind services.Kind) int {
	switch kind {
	case services.KindInvalidInput:
		return http.StatusBadRequest
	case services.KindNotAuthorized:
		return http.StatusForbidden
	case services.KindNotAMember:
		return http.StatusForbidden
	case services.KindNotFound:
		return http.StatusNotFound
	case services.KindConflict, services.KindAlreadyStarted:
		return http.StatusConflict
	case services.KindInvalidTransition:
		return http.StatusBadRequest
	case services.KindNotYourInstance:
		return http.StatusBadRequest
	case services.KindNotActive:
		return http.StatusBadRequest
	case services.KindUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
