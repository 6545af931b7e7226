package handlers

import (
	"encoding/json"
	"net/http"
)

// HandlerFunc is the signature shared by every handler.
type HandlerFunc func(http.ResponseWriter, *http.Request)

// ErrorResponse is the error body of the dev API.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// JSON writes data as a JSON response.
func JSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			http.Error(w, "Failed to encode response", http.StatusInternalServerError)
		}
	}
}

// Error writes a dev API error.
func Error(w http.ResponseWriter, status int, code string, message string) {
	JSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}

func NotFound(w http.ResponseWriter, message string) {
	Error(w, http.StatusNotFound, "NOT_FOUND", message)
}

func BadRequest(w http.ResponseWriter, message string) {
	Error(w, http.StatusBadRequest, "BAD_REQUEST", message)
}

func InternalError(w http.ResponseWriter, message string) {
	Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", message)
}

// lambdaError is the error body of the Lambda service APIs.
type lambdaError struct {
	Type    string `json:"Type"`
	Message string `json:"message"`
}

// LambdaError writes an error the way the Lambda service does, with the
// exception name in X-Amzn-ErrorType.
func LambdaError(w http.ResponseWriter, status int, exception, message string) {
	errType := "User"
	if status >= http.StatusInternalServerError {
		errType = "Service"
	}
	w.Header().Set("X-Amzn-ErrorType", exception)
	JSON(w, status, lambdaError{Type: errType, Message: message})
}

// accepted is the body the Runtime API returns for posted results.
var accepted = map[string]string{"status": "OK"}

// rawJSON embeds payload as-is when it is valid JSON, and as a string otherwise.
func rawJSON(payload []byte) any {
	if json.Valid(payload) {
		return json.RawMessage(payload)
	}
	return string(payload)
}
