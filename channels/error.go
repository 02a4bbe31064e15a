package channels

import (
	"net/http"

	"github.com/Abraxas-365/craftable/errx"
)

// ============================================================================
// Error Registry
// ============================================================================

var ErrRegistry = errx.NewRegistry("CHANNEL")

// ============================================================================
// Error Codes
// ============================================================================

var (
	// Message sending errors
	CodeMessageSendFailed = ErrRegistry.Register("MESSAGE_SEND_FAILED", errx.TypeExternal, http.StatusBadGateway, "Message could not be delivered")
	CodeInvalidRecipient  = ErrRegistry.Register("INVALID_RECIPIENT", errx.TypeValidation, http.StatusBadRequest, "Invalid dialog id")

	// CRM errors
	CodeInvalidEntity  = ErrRegistry.Register("INVALID_ENTITY", errx.TypeValidation, http.StatusBadRequest, "Unsupported CRM entity")
	CodeRecordNotFound = ErrRegistry.Register("RECORD_NOT_FOUND", errx.TypeNotFound, http.StatusNotFound, "CRM record not found")

	// Provider errors
	CodeProviderNotConfigured = ErrRegistry.Register("PROVIDER_NOT_CONFIGURED", errx.TypeValidation, http.StatusBadRequest, "Provider not configured")
	CodeProviderAuthFailed    = ErrRegistry.Register("PROVIDER_AUTH_FAILED", errx.TypeExternal, http.StatusUnauthorized, "Provider rejected the credentials")
	CodeProviderAPIError      = ErrRegistry.Register("PROVIDER_API_ERROR", errx.TypeExternal, http.StatusBadGateway, "Provider API error")
	CodeProviderRateLimited   = ErrRegistry.Register("PROVIDER_RATE_LIMITED", errx.TypeExternal, http.StatusTooManyRequests, "Provider rate limit exceeded")
)

// ============================================================================
// Error Constructor Functions
// ============================================================================

func ErrMessageSendFailed() *errx.Error {
	return ErrRegistry.New(CodeMessageSendFailed)
}

func ErrInvalidRecipient() *errx.Error {
	return ErrRegistry.New(CodeInvalidRecipient)
}

func ErrInvalidEntity() *errx.Error {
	return ErrRegistry.New(CodeInvalidEntity)
}

func ErrRecordNotFound() *errx.Error {
	return ErrRegistry.New(CodeRecordNotFound)
}

func ErrProviderNotConfigured() *errx.Error {
	return ErrRegistry.New(CodeProviderNotConfigured)
}

func ErrProviderAuthFailed() *errx.Error {
	return ErrRegistry.New(CodeProviderAuthFailed)
}

func ErrProviderAPIError() *errx.Error {
	return ErrRegistry.New(CodeProviderAPIError)
}

func ErrProviderRateLimited() *errx.Error {
	return ErrRegistry.New(CodeProviderRateLimited)
}
