package apiclient

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
)

type ErrorKind int

const (
	KindNetwork ErrorKind = iota
	KindUnauthorized
	KindForbidden
	KindNotFound
	KindBadRequest
	KindServer
)

func (k ErrorKind) String() string {
	switch k {
	case KindNetwork:
		return "network error"
	case KindUnauthorized:
		return "unauthorized"
	case KindForbidden:
		return "forbidden"
	case KindNotFound:
		return "not found"
	case KindBadRequest:
		return "bad request"
	case KindServer:
		return "server error"
	}
	return "unknown error"
}

// Sentinels for errors.Is. They match any *Error of the same kind.
var (
	ErrNetwork      = &Error{Kind: KindNetwork}
	ErrUnauthorized = &Error{Kind: KindUnauthorized}
	ErrForbidden    = &Error{Kind: KindForbidden}
	ErrNotFound     = &Error{Kind: KindNotFound}
	ErrBadRequest   = &Error{Kind: KindBadRequest}
	ErrServer       = &Error{Kind: KindServer}
)

// Error is returned for every failed request. Fields holds per-field validation messages.
type Error struct {
	Kind    ErrorKind
	Status  int
	Message string
	Fields  map[string]string
	Err     error // transport error, network kind only
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && len(e.Fields) > 0 {
		keys := make([]string, 0, len(e.Fields))
		for k := range e.Fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, len(keys))
		for i, k := range keys {
			parts[i] = k + ": " + e.Fields[k]
		}
		msg = strings.Join(parts, "; ")
	}
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if msg == "" {
		return e.Kind.String()
	}
	return fmt.Sprintf("%s: %s", e.Kind, msg)
}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

func (e *Error) Unwrap() error { return e.Err }

func kindOf(status int) ErrorKind {
	switch {
	case status == http.StatusUnauthorized:
		return KindUnauthorized
	case status == http.StatusForbidden:
		return KindForbidden
	case status == http.StatusNotFound:
		return KindNotFound
	case status >= 500:
		return KindServer
	default:
		return KindBadRequest
	}
}

// newResponseError reads the backend error body: {"error": msg} or {field: msg, ...}.
func newResponseError(status int, body string) *Error {
	e := &Error{Kind: kindOf(status), Status: status}

	var obj map[string]interface{}
	if err := json.Unmarshal([]byte(body), &obj); err != nil {
		e.Message = strings.TrimSpace(body)
		if e.Message == "" {
			e.Message = http.StatusText(status)
		}
		return e
	}
	if msg, ok := obj["error"].(string); ok {
		e.Message = msg
		return e
	}
	if msg, ok := obj["message"].(string); ok { // echo default errors
		e.Message = msg
		return e
	}
	for k, v := range obj {
		if s, ok := v.(string); ok {
			if e.Fields == nil {
				e.Fields = make(map[string]string, len(obj))
			}
			e.Fields[k] = s
		}
	}
	if e.Fields == nil {
		e.Message = http.StatusText(status)
	}
	return e
}
