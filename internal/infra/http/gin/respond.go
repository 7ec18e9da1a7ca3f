package ginserver

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	gin "github.com/gin-gonic/gin"

	supportapp "kisaanconnect/internal/app/handlers/support"
	"kisaanconnect/internal/app/middleware"
	authsvc "kisaanconnect/internal/app/services/auth"
	chatsvc "kisaanconnect/internal/app/services/chat"
	domainchat "kisaanconnect/internal/domain/chat"
	domainlistings "kisaanconnect/internal/domain/listings"
	domainmarket "kisaanconnect/internal/domain/market"
	domainsupport "kisaanconnect/internal/domain/support"
	domainuser "kisaanconnect/internal/domain/user"
	"kisaanconnect/internal/infra/media"
)

const (
	codeValidation   = "validation_error"
	codeUnauthorized = "unauthorized"
	codeForbidden    = "forbidden"
	codeNotFound     = "not_found"
	codeConflict     = "conflict"
	codeRateLimited  = "too_many_requests"
	codeUnavailable  = "service_unavailable"
	codeInternal     = "internal_error"
)

var (
	errAuthRequired = errors.New("authentication required")
	errBadRequest   = errors.New("invalid request")
)

type errorBody struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Message string `json:"message"`
}

func abortWith(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, errorBody{Error: code, Message: message})
}

// badRequest reports a malformed request that never reached the domain.
func badRequest(c *gin.Context, message string) {
	abortWith(c, http.StatusBadRequest, codeValidation, message)
}

// respondError maps domain and application errors onto HTTP responses. Only
// unexpected errors are logged; their text never reaches the client.
func respondError(c *gin.Context, logger *slog.Logger, err error) {
	status, code := classify(err)
	message := publicMessage(err)
	if status >= http.StatusInternalServerError {
		if logger != nil {
			logger.Error("request failed", "path", c.FullPath(), "method", c.Request.Method, "error", err)
		}
		if status == http.StatusInternalServerError {
			message = "something went wrong"
		}
	}
	abortWith(c, status, code, message)
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, errBadRequest),
		domainchat.IsValidationError(err),
		domainlistings.IsValidationError(err),
		domainsupport.IsValidationError(err),
		domainuser.IsValidationError(err),
		errors.Is(err, supportapp.ErrNothingToUpdate),
		errors.Is(err, media.ErrImageTooLarge),
		errors.Is(err, media.ErrImageInvalid),
		errors.Is(err, authsvc.ErrPasswordTooShort),
		errors.Is(err, authsvc.ErrIdentifierRequired),
		errors.Is(err, authsvc.ErrPushTokenRequired),
		errors.Is(err, authsvc.ErrResetTokenInvalid):
		return http.StatusBadRequest, codeValidation
	case errors.Is(err, errAuthRequired),
		errors.Is(err, authsvc.ErrInvalidCredentials):
		return http.StatusUnauthorized, codeUnauthorized
	case errors.Is(err, domainchat.ErrNotParticipant),
		errors.Is(err, domainlistings.ErrNotOwner),
		errors.Is(err, domainsupport.ErrForbidden),
		errors.Is(err, domainuser.ErrForbidden),
		errors.Is(err, middleware.ErrForbidden):
		return http.StatusForbidden, codeForbidden
	case errors.Is(err, domainchat.ErrConversationNotFound),
		errors.Is(err, chatsvc.ErrParticipantNotFound),
		errors.Is(err, domainlistings.ErrNotFound),
		errors.Is(err, domainsupport.ErrNotFound),
		errors.Is(err, domainuser.ErrNotFound):
		return http.StatusNotFound, codeNotFound
	case errors.Is(err, domainuser.ErrPhoneAlreadyUsed),
		errors.Is(err, domainuser.ErrEmailAlreadyUsed):
		return http.StatusConflict, codeConflict
	case errors.Is(err, authsvc.ErrResetUnavailable),
		errors.Is(err, domainmarket.ErrEmptyCatalog):
		return http.StatusServiceUnavailable, codeUnavailable
	default:
		return http.StatusInternalServerError, codeInternal
	}
}

// publicMessage drops the "package: " prefix of sentinel errors.
func publicMessage(err error) string {
	msg := err.Error()
	if errors.Is(err, errBadRequest) {
		return strings.TrimPrefix(msg, errBadRequest.Error()+": ")
	}
	if i := strings.Index(msg, ": "); i > 0 && !strings.ContainsAny(msg[:i], " ") {
		msg = msg[i+2:]
	}
	return msg
}
