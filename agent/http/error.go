// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package http

import (
	"errors"
	"net/http"
)

// errInvalidMethod is the response body for a request using an unsupported
// HTTP method.
const errInvalidMethod = "Invalid method"

// codedError is an error carrying the HTTP status code to respond with.
// Errors without a code are answered with a 500.
type codedError interface {
	error
	Code() int
}

var _ codedError = (*codedErrorImpl)(nil)

type codedErrorImpl struct {
	err  error
	code int
}

// newCodedError returns a codedError with the passed status code and message.
func newCodedError(code int, msg string) *codedErrorImpl {
	return &codedErrorImpl{err: errors.New(msg), code: code}
}

// wrapCodedError attaches a status code to err. The original error remains
// reachable through errors.Is and errors.As.
func wrapCodedError(code int, err error) *codedErrorImpl {
	return &codedErrorImpl{err: err, code: code}
}

func (e *codedErrorImpl) Error() string { return e.err.Error() }
func (e *codedErrorImpl) Code() int     { return e.code }
func (e *codedErrorImpl) Unwrap() error { return e.err }

// errorCode returns the status code of the first codedError in err's chain,
// or http.StatusInternalServerError if there is none.
func errorCode(err error) int {
	var coded codedError
	if errors.As(err, &coded) {
		return coded.Code()
	}
	return http.StatusInternalServerError
}
