package mediaservices

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
)

// ErrNotFound is returned by lookups of resources that do not exist.
var ErrNotFound = errors.New("resource not found")

// AuthError marks failures to obtain or use credentials.
type AuthError struct {
	Err error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("authentication failed: %v", e.Err)
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// APIError is a service-side failure carrying a machine-readable code.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Err        error
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api call failed with status %d: %s: %s", e.StatusCode, e.Code, e.Message)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

type errorBody struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// classify maps SDK failures onto AuthError, ErrNotFound and APIError.
// Anything else is returned unchanged.
func classify(err error) error {
	if err == nil {
		return nil
	}

	var authErr *azidentity.AuthenticationFailedError
	if errors.As(err, &authErr) {
		return &AuthError{Err: err}
	}

	var respErr *azcore.ResponseError
	if !errors.As(err, &respErr) {
		return err
	}

	apiErr := &APIError{StatusCode: respErr.StatusCode, Code: respErr.ErrorCode, Err: err}
	if body := readErrorBody(respErr.RawResponse); body != nil {
		if body.Error.Code != "" {
			apiErr.Code = body.Error.Code
		}
		apiErr.Message = body.Error.Message
	}
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(respErr.StatusCode)
	}

	switch respErr.StatusCode {
	case http.StatusUnauthorized:
		return &AuthError{Err: apiErr}
	case http.StatusNotFound:
		return fmt.Errorf("%w: %w", ErrNotFound, apiErr)
	}
	return apiErr
}

func readErrorBody(resp *http.Response) *errorBody {
	if resp == nil || resp.Body == nil {
		return nil
	}
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil
	}
	resp.Body = io.NopCloser(bytes.NewReader(raw))
	var body errorBody
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil
	}
	return &body
}
