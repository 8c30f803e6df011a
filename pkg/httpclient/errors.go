package httpclient

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	apperrors "github.com/utafrali/moviesearch/pkg/errors"
)

// StatusError is returned for upstream responses the breaker counts as
// failures.
type StatusError struct {
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("server error %d: %s", e.Status, e.Body)
}

// Unwrap lets callers match upstream failures with errors.Is(err, ErrRewriteFailed).
func (e *StatusError) Unwrap() error {
	return apperrors.ErrRewriteFailed
}

// UpstreamErrorResponse matches the OpenAI-compatible error body that
// completion providers return.
type UpstreamErrorResponse struct {
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    any    `json:"code"`
	} `json:"error"`
}

// ParseResponseError reads the body of a non-2xx response and turns it into
// an error wrapping ErrRewriteFailed. The body is fully consumed and closed.
func ParseResponseError(resp *http.Response, upstream string) error {
	defer func() { _ = resp.Body.Close() }()

	bodyBytes, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("%s returned status %d (failed to read body: %v): %w",
			upstream, resp.StatusCode, err, apperrors.ErrRewriteFailed)
	}

	var body UpstreamErrorResponse
	if json.Unmarshal(bodyBytes, &body) == nil && body.Error != nil && body.Error.Message != "" {
		kind := body.Error.Type
		if kind == "" {
			kind = "error"
		}
		return fmt.Errorf("%s returned status %d (%s): %s: %w",
			upstream, resp.StatusCode, kind, body.Error.Message, apperrors.ErrRewriteFailed)
	}

	return fmt.Errorf("%s returned status %d: %s: %w",
		upstream, resp.StatusCode, string(bodyBytes), apperrors.ErrRewriteFailed)
}
