package llm

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/BaSui01/visionflow/types"
)

// MapHTTPError converts an upstream HTTP status into a types.Error with
// the right retry flag.
func MapHTTPError(status int, msg string, provider string) *types.Error {
	e := types.NewError(types.ErrUpstreamError, msg).WithHTTPStatus(status).WithProvider(provider)
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		e.Code = types.ErrUnauthorized
	case http.StatusTooManyRequests:
		e.Code = types.ErrRateLimited
		e.Retryable = true
	case http.StatusBadRequest:
		e.Code = types.ErrInvalidRequest
	case http.StatusServiceUnavailable, http.StatusBadGateway, http.StatusGatewayTimeout:
		e.Retryable = true
	default:
		e.Retryable = status >= 500
	}
	return e
}

// ReadErrorMessage extracts the error message of a JSON error body,
// falling back to the raw text.
func ReadErrorMessage(body io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(body, 64<<10))
	if err != nil {
		return "failed to read error response"
	}

	var errResp struct {
		Error struct {
			Message string `json:"message"`
			Status  string `json:"status"`
		} `json:"error"`
	}
	if err := json.Unmarshal(data, &errResp); err == nil && errResp.Error.Message != "" {
		if errResp.Error.Status != "" {
			return errResp.Error.Message + " (status: " + errResp.Error.Status + ")"
		}
		return errResp.Error.Message
	}
	return strings.TrimSpace(string(data))
}
