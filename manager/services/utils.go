package services

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
)

// Result is the envelope every engine operation resolves to. StatusCode is
// one of 200, 201, 302, 404 or 422 in string form.
type Result struct {
	StatusCode string `json:"statusCode"`
	Message    string `json:"message"`
	Data       any    `json:"data,omitempty"`
	Uri        string `json:"uri,omitempty"`
}

const (
	StatusOK            = "200"
	StatusCreated       = "201"
	StatusFound         = "302"
	StatusNotFound      = "404"
	StatusUnprocessable = "422"
)

// HttpStatus is the numeric form of StatusCode.
func (r Result) HttpStatus() int {
	code, err := strconv.Atoi(r.StatusCode)
	if err != nil {
		return http.StatusInternalServerError
	}
	return code
}

func okResult(data any) Result {
	return Result{StatusCode: StatusOK, Message: "OK", Data: data}
}

type codedError struct {
	err  error
	code int
}

func (e *codedError) Error() string {
	return e.err.Error()
}

func (e *codedError) Unwrap() error {
	return e.err
}

func CodedError(err error, code int) error {
	return &codedError{err: err, code: code}
}

func GetResponseCode(err error) int {
	var cerr *codedError
	if errors.As(err, &cerr) {
		return cerr.code
	}
	slog.Error("non coded error passed to GetResponseCode", "error", err)
	return http.StatusInternalServerError
}

func notFound(err error) error {
	return CodedError(err, http.StatusNotFound)
}

func unprocessable(err error) error {
	return CodedError(err, http.StatusUnprocessableEntity)
}

func statusMessage(code int) string {
	switch code {
	case http.StatusNotFound:
		return "NOT FOUND"
	case http.StatusUnprocessableEntity:
		return "UNPROCESSABLE ENTITY"
	case http.StatusFound:
		return "FOUND"
	default:
		return http.StatusText(code)
	}
}

// resolve turns the outcome of an operation into its envelope. Coded errors
// are expected outcomes and become envelopes; anything else is a storage
// failure and is returned as an error.
func resolve(err error, success Result) (Result, error) {
	if err == nil {
		return success, nil
	}

	var cerr *codedError
	if errors.As(err, &cerr) {
		return Result{
			StatusCode: strconv.Itoa(cerr.code),
			Message:    fmt.Sprintf("%v: %v", statusMessage(cerr.code), cerr.err),
		}, nil
	}

	return Result{}, err
}
