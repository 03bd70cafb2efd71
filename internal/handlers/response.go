package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/venturely/venturely-backend/internal/platform/apierr"
)

type APIError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

func RespondError(c *gin.Context, status int, code string, err error) {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	c.JSON(status, ErrorEnvelope{
		Error: APIError{
			Message: msg,
			Code:    code,
		},
	})
}

// Upstream failure text can embed raw gateway response bodies, so 5xx-class
// and throttled envelopes carry curated text; the raw detail stays in the
// server log.
var curatedMessages = map[string]string{
	"rate_limited":             "The assistant is handling too many requests right now. Please try again in a moment.",
	"run_timed_out":            "The assistant took too long to respond. Please try again in a moment.",
	"run_failed":               "The assistant could not complete a response. Please try again in a moment.",
	"assistant_gateway":        "The assistant service is temporarily unavailable. Please try again in a moment.",
	"no_assistant_response":    "The assistant did not return a response. Please try again in a moment.",
	"assistant_not_configured": "This section's assistant is not configured yet.",
}

func clientMessage(status int, code string, err error) string {
	if status < http.StatusInternalServerError && status != http.StatusTooManyRequests {
		if err != nil {
			return err.Error()
		}
		return "unknown error"
	}
	if msg, ok := curatedMessages[code]; ok {
		return msg
	}
	return "Something went wrong on our side. Please try again in a moment."
}

// RespondAPIError maps a service error onto the response envelope using the
// status and code carried by the error. Throttled and unavailable responses
// get a Retry-After hint and curated message text.
func RespondAPIError(c *gin.Context, err error) {
	status := apierr.StatusOf(err)
	code := apierr.CodeOf(err)
	if status == http.StatusTooManyRequests || status == http.StatusServiceUnavailable {
		c.Header("Retry-After", "5")
	}
	c.JSON(status, ErrorEnvelope{
		Error: APIError{
			Message: clientMessage(status, code, err),
			Code:    code,
		},
	})
}

func RespondOK(c *gin.Context, payload any) {
	c.JSON(http.StatusOK, payload)
}
