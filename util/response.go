// Package util holds the HTTP response envelope shared by every API
// handler.
package util

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/render"
)

type Response struct {
	StatusCode int `json:"-"`
}

func (res Response) Render(w http.ResponseWriter, r *http.Request) error {
	render.Status(r, res.StatusCode)
	return nil
}

// ServerResponse is the envelope for every API reply: a success flag, a
// human-readable message and an optional data document.
type ServerResponse struct {
	Response
	Status  bool            `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func NewServerResponse(msg string, object interface{}, statusCode int) ServerResponse {
	data, err := json.Marshal(object)
	if err != nil {
		return NewErrorResponse("failed to marshal response data", http.StatusInternalServerError)
	}

	return ServerResponse{
		Status:  true,
		Message: msg,
		Data:    data,
		Response: Response{
			StatusCode: statusCode,
		},
	}
}

func NewErrorResponse(msg string, statusCode int) ServerResponse {
	return ServerResponse{
		Status:  false,
		Message: msg,
		Response: Response{
			StatusCode: statusCode,
		},
	}
}

// ServiceError pairs an error with the HTTP status it should surface as,
// so handlers can classify once and render uniformly.
type ServiceError struct {
	errCode int
	errMsg  error
}

func NewServiceError(errCode int, errMsg error) *ServiceError {
	return &ServiceError{errCode: errCode, errMsg: errMsg}
}

func (s *ServiceError) Error() string {
	return s.errMsg.Error()
}

func (s *ServiceError) Unwrap() error {
	return s.errMsg
}

func (s *ServiceError) ErrCode() int {
	return s.errCode
}

// NewServiceErrResponse renders any error as an envelope; errors that are
// not ServiceErrors default to 400.
func NewServiceErrResponse(err error) ServerResponse {
	statusCode := http.StatusBadRequest
	if se, ok := err.(*ServiceError); ok {
		statusCode = se.ErrCode()
	}

	return NewErrorResponse(err.Error(), statusCode)
}
