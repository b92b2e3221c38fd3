package cerr

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"runtime"

	"github.com/stagecraft/stagehand/pkg/clog"
)

type Error struct {
	Code  Code
	Msg   string // message returned to callers alongside the code
	Err   error  // underlying error kept for logs
	Stack string
}

func NewError(code Code, msg string, underlying error) *Error {
	err := &Error{
		Code: code,
		Msg:  msg,
		Err:  underlying,
	}
	if code.Level() == clog.LevelError {
		stackTrace := make([]byte, 2048)
		n := runtime.Stack(stackTrace, false)
		err.Stack = string(stackTrace[0:n])
	}
	return err
}

// Errorf builds an Error with a formatted message.
func Errorf(code Code, underlying error, format string, args ...any) *Error {
	return NewError(code, fmt.Sprintf(format, args...), underlying)
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("[%s] %s", e.Code.String(), e.Msg)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code.String(), e.Msg, e.Err.Error())
}

func (e *Error) Unwrap() error {
	return e.Err
}

func IsCode(err error, code Code) bool {
	var cerr *Error
	if errors.As(err, &cerr) {
		return cerr.Code == code
	}
	return false
}

// CodeOf returns the code carried by err, or Unknown for foreign errors.
func CodeOf(err error) Code {
	if err == nil {
		return OK
	}
	var cerr *Error
	if errors.As(err, &cerr) {
		return cerr.Code
	}
	if errors.Is(err, context.Canceled) {
		return Canceled
	}
	return Unknown
}

type httpError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// WriteJSON writes a successful JSON response body.
func WriteJSON(ctx context.Context, rw http.ResponseWriter, response any) {
	rw.Header().Set("Content-Type", "application/json; charset=utf-8")
	buf := &bytes.Buffer{}
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(true)
	if err := enc.Encode(response); err != nil {
		WriteJSONError(ctx, rw, NewError(Internal, "server error", err))
		return
	}
	if _, err := rw.Write(buf.Bytes()); err != nil {
		clog.AddError(ctx, NewError(Internal, "server error", err))
	}
}

// WriteJSONError maps err onto an HTTP status and a {code, message} body.
func WriteJSONError(ctx context.Context, rw http.ResponseWriter, origErr error) {
	var cErr *Error
	if !errors.As(origErr, &cErr) {
		if errors.Is(origErr, context.Canceled) {
			cErr = NewError(Canceled, "connection closed", origErr)
		} else {
			cErr = NewError(Unknown, "unknown error", origErr)
		}
	}
	clog.AddError(ctx, cErr)
	if cErr.Stack != "" {
		clog.AddStack(ctx, cErr.Stack)
	}

	rw.Header().Set("Content-Type", "application/json; charset=utf-8")
	rw.WriteHeader(cErr.Code.HTTPCode())
	buf := &bytes.Buffer{}
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(true)
	if err := enc.Encode(httpError{Code: cErr.Code.String(), Message: cErr.Msg}); err != nil {
		buf = bytes.NewBufferString(`{"code":"internal","message":"server error"}`)
		clog.AddError(ctx, err)
	}
	if _, err := rw.Write(buf.Bytes()); err != nil {
		clog.AddError(ctx, err)
	}
}
