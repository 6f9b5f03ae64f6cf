package apiclient

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/your-org/eid-storefront/internal/session"
)

// Envelope is the normalized result of every JSON call
type Envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Message string          `json:"message,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// Decode unmarshals the data payload into v. An empty payload leaves v untouched.
func (e *Envelope) Decode(v interface{}) error {
	if e == nil || isNull(e.Data) {
		return nil
	}
	if err := json.Unmarshal(e.Data, v); err != nil {
		return fmt.Errorf("failed to decode response data: %w", err)
	}
	return nil
}

// Items returns the collection carried in the data payload, whatever its shape
func (e *Envelope) Items() []json.RawMessage {
	if e == nil {
		return []json.RawMessage{}
	}
	return Items(e.Data)
}

// APIError is a non-2xx response
type APIError struct {
	Status  int
	Message string
	Body    []byte
}

func (e *APIError) Error() string {
	return e.Message
}

// AuthError is an unrecoverable authentication failure. Credentials have
// already been cleared and a logout broadcast when it is returned.
type AuthError struct {
	Reason  session.LogoutReason
	Message string
}

func (e *AuthError) Error() string {
	return e.Message
}

// IsStatus reports whether err is an APIError with the given status
func IsStatus(err error, status int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == status
}

// normalize turns a response into an envelope or an error. It consumes and
// closes the body.
func normalize(resp *http.Response) (*Envelope, error) {
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent {
		return &Envelope{Success: true}, nil
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	ok := resp.StatusCode >= 200 && resp.StatusCode < 300
	trimmed := bytes.TrimSpace(body)

	if !json.Valid(trimmed) || len(trimmed) == 0 {
		if ok {
			if len(trimmed) == 0 {
				return &Envelope{Success: true}, nil
			}
			data, _ := json.Marshal(string(body))
			return &Envelope{Success: true, Data: data}, nil
		}
		msg := strings.TrimSpace(string(body))
		if msg == "" {
			msg = statusMessage(resp)
		}
		return nil, &APIError{Status: resp.StatusCode, Message: msg, Body: body}
	}

	if !ok {
		msg := errorMessage(trimmed)
		if msg == "" {
			msg = statusMessage(resp)
		}
		return nil, &APIError{Status: resp.StatusCode, Message: msg, Body: body}
	}

	obj := ParseObject(trimmed)
	if obj == nil || !obj.Has("success") {
		return &Envelope{Success: true, Data: json.RawMessage(trimmed)}, nil
	}

	env := &Envelope{
		Data:    obj.Raw("data"),
		Message: obj.String("message"),
		Error:   errorText(obj.Raw("error")),
	}
	if err := json.Unmarshal(obj["success"], &env.Success); err != nil {
		env.Success = true
	}
	return env, nil
}

// errorMessage pulls message, error or detail out of a JSON error body
func errorMessage(body []byte) string {
	obj := ParseObject(body)
	if obj == nil {
		return ""
	}
	if s := obj.String("message"); s != "" {
		return s
	}
	if s := errorText(obj.Raw("error")); s != "" {
		return s
	}
	return obj.String("detail")
}

// errorText accepts "error": "text" as well as "error": {"message": "text"}
func errorText(raw json.RawMessage) string {
	if raw == nil {
		return ""
	}
	if s := scalarText(raw); s != "" {
		return s
	}
	if nested := ParseObject(raw); nested != nil {
		return nested.String("message", "detail")
	}
	return ""
}

func statusMessage(resp *http.Response) string {
	text := strings.TrimSpace(strings.TrimPrefix(resp.Status, strconv.Itoa(resp.StatusCode)))
	if text == "" {
		text = http.StatusText(resp.StatusCode)
	}
	return fmt.Sprintf("HTTP %d: %s", resp.StatusCode, text)
}
