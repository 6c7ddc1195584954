package transport

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/agentstation/recordsync/pkg/errors"
)

// maxErrorBody bounds how much of an error response is kept in messages.
const maxErrorBody = 512

// errorBody is the error document returned by the record service.
type errorBody struct {
	Error       string `json:"error"`
	Description string `json:"error_description"`
}

// decodeResponse closes resp and decodes a successful JSON body into target.
// Non-2xx responses become *errors.APIError.
func decodeResponse(resp *http.Response, op, endpoint string, target any) error {
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.WrapAPI(op, endpoint, errors.WrapIO("read", "response body", err))
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &errors.APIError{
			Operation:  op,
			StatusCode: resp.StatusCode,
			Endpoint:   endpoint,
			Message:    errorMessage(body, resp.Status),
		}
	}

	if target == nil || len(strings.TrimSpace(string(body))) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, target); err != nil {
		return errors.WrapAPI(op, endpoint, errors.WrapParse("json", "response", err))
	}
	return nil
}

func errorMessage(body []byte, status string) string {
	var eb errorBody
	if json.Unmarshal(body, &eb) == nil && eb.Error != "" {
		if eb.Description != "" {
			return eb.Error + ": " + eb.Description
		}
		return eb.Error
	}
	msg := strings.TrimSpace(string(body))
	if msg == "" {
		return status
	}
	if len(msg) > maxErrorBody {
		msg = msg[:maxErrorBody] + "..."
	}
	return msg
}
