package server

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// ResponseError is the JSON body of every failed request.
type ResponseError struct {
	Message string `json:"message"`
	Err     string `json:"error"`
	Code    int    `json:"code,omitempty"`
}

func (e *ResponseError) Error() string {
	return fmt.Sprintf("code: %d, message: %s, error: %s", e.Code, e.Message, e.Err)
}

// Write sends the error with its status code.
func (e *ResponseError) Write(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(e.Code)
	_ = json.NewEncoder(w).Encode(e)
}

func ComposeError(code int, message string, err error) *ResponseError {
	return &ResponseError{Code: code, Message: message, Err: err.Error()}
}
