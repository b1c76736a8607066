package echoapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/schoolsite/core"
	"github.com/trezcool/schoolsite/core/content"
	testutil "github.com/trezcool/schoolsite/tests"
)

func TestClassifyError(t *testing.T) {
	type input struct {
		Email string `json:"email" validate:"required"`
	}
	vErr := core.Validate.Struct(input{})
	require.Error(t, vErr)

	tests := []struct {
		name      string
		err       error
		wantCode  int
		wantBody  interface{}
		wantKnown bool
	}{
		{name: "http error", err: errHttpForbidden, wantCode: http.StatusForbidden, wantBody: "permission denied", wantKnown: true},
		{name: "wrapped http error", err: errors.Wrap(errAccountDeactivated, "login"), wantCode: http.StatusForbidden, wantBody: "account deactivated", wantKnown: true},
		{name: "internal http error", err: echo.NewHTTPError(http.StatusBadRequest).SetInternal(errFileTooLarge), wantCode: http.StatusRequestEntityTooLarge, wantBody: "uploaded file is too large", wantKnown: true},
		{name: "missing jwt", err: middleware.ErrJWTMissing, wantCode: http.StatusUnauthorized, wantBody: middleware.ErrJWTMissing.Message, wantKnown: true},
		{name: "not found", err: errors.Wrap(content.ErrNotFound, "getting item"), wantCode: http.StatusNotFound, wantBody: "not found", wantKnown: true},
		{name: "validator", err: errors.Wrap(vErr, "validating"), wantCode: http.StatusBadRequest, wantBody: map[string]string{"email": "this field is required"}, wantKnown: true},
		{name: "field error", err: core.NewFieldError("attrs", "unknown attribute"), wantCode: http.StatusBadRequest, wantBody: map[string]string{"attrs": "unknown attribute"}, wantKnown: true},
		{name: "validation without fields", err: &core.ValidationError{Err: errors.New("bad")}, wantCode: http.StatusBadRequest, wantBody: "bad", wantKnown: true},
		{name: "unexpected", err: fmt.Errorf("db is gone"), wantCode: http.StatusInternalServerError, wantBody: "Internal Server Error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, body, known := classifyError(tt.err)
			assert.Equal(t, tt.wantCode, code)
			assert.Equal(t, tt.wantBody, body)
			assert.Equal(t, tt.wantKnown, known)
		})
	}
}

func TestAppHTTPErrorHandler(t *testing.T) {
	conf := testutil.Config(t)

	tests := []struct {
		name         string
		err          error
		debug        bool
		wantBody     map[string]string
		wantShutdown bool
	}{
		{name: "unexpected", err: errors.New("db is gone"), wantBody: map[string]string{"error": "Internal Server Error"}},
		{name: "unexpected in debug", err: errors.New("db is gone"), debug: true, wantBody: map[string]string{"error": "db is gone"}},
		{name: "shutdown", err: errors.Wrap(core.NewShutdownError("integrity"), "saving"), wantBody: map[string]string{"error": "Internal Server Error"}, wantShutdown: true},
		{name: "known errors are not exposed in debug", err: errHttpForbidden, debug: true, wantBody: map[string]string{"error": "permission denied"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			shutdown := false
			handler := newAppHTTPErrorHandler(testutil.Logger(conf), func() { shutdown = true })

			e := echo.New()
			e.Debug = tt.debug
			rec := httptest.NewRecorder()
			handler(tt.err, e.NewContext(httptest.NewRequest(http.MethodGet, "/api/news", nil), rec))

			var body map[string]string
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.wantBody, body)
			assert.Equal(t, tt.wantShutdown, shutdown)
		})
	}
}
