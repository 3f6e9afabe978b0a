// Package httpjson writes the JSON envelopes shared by every HTTP handler:
// {success:true, data|message} on success and {success:false, error, message[, reason]} on failure.
package httpjson

import (
	"encoding/json"
	"io"
	"net/http"
)

// maxBodyBytes bounds request bodies read by Decode.
const maxBodyBytes = 1 << 20

// ErrorResponse is the body of every rejected request.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

// DataResponse wraps a successful payload.
type DataResponse struct {
	Success bool `json:"success"`
	Data    any  `json:"data"`
}

// MessageResponse is a successful response carrying only a message.
type MessageResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// WriteJSON writes v with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteData writes {success:true, data}.
func WriteData(w http.ResponseWriter, status int, data any) {
	WriteJSON(w, status, DataResponse{Success: true, Data: data})
}

// WriteMessage writes {success:true, message}.
func WriteMessage(w http.ResponseWriter, status int, message string) {
	WriteJSON(w, status, MessageResponse{Success: true, Message: message})
}

// WriteError writes {success:false, error, message}.
func WriteError(w http.ResponseWriter, status int, code, message string) {
	WriteJSON(w, status, ErrorResponse{Error: code, Message: message})
}

// WriteRejection writes {success:false, error, message, reason}; reason is omitted when empty.
func WriteRejection(w http.ResponseWriter, status int, code, message, reason string) {
	WriteJSON(w, status, ErrorResponse{Error: code, Message: message, Reason: reason})
}

// Decode reads a JSON body into v. An empty body leaves v untouched and returns io.EOF.
func Decode(r *http.Request, v any) error {
	if r.Body == nil {
		return io.EOF
	}
	return json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(v)
}
