package tests

import (
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServer_home(t *testing.T) {
	f := setup(t)
	rec := f.do(http.MethodGet, "/", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Welcome")

	rec = f.do(http.MethodGet, "/health/", "")
	assert.Equal(t, http.StatusOK, rec.Code, "trailing slash removed")
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestServer_metrics(t *testing.T) {
	f := setup(t)
	f.do(http.MethodGet, "/api/news", "")
	f.do(http.MethodGet, "/api/users", "")

	rec := f.do(http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `http_requests_total{code="200",method="GET",route="/api/news"} 1`)
	assert.Contains(t, body, `http_requests_total{code="401",method="GET",route="/api/users"} 1`)
	assert.Contains(t, body, "http_request_duration_seconds_bucket")
}

func TestServer_cors(t *testing.T) {
	f := setup(t)
	req, rec := newRequest(http.MethodOptions, "/api/news")
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	f.app.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestContactApi(t *testing.T) {
	f := setup(t)

	tests := []httpTest{
		{
			name:     "missing fields",
			body:     []byte(`{"name":"Ibu Sari","email":"not-an-email"}`),
			wantCode: http.StatusBadRequest,
			wantData: []byte(`{"email":"email must be a valid email address","subject":"this field is required","message":"this field is required"}`),
		},
		{
			name:     "sent",
			body:     []byte(`{"name":"Ibu Sari","email":"Sari@test.id","subject":"Pendaftaran","message":"Kapan pendaftaran dibuka?"}`),
			wantCode: http.StatusAccepted,
			extra:    "Kapan pendaftaran dibuka?",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f.mailSvc.Reset()
			rec := f.do(http.MethodPost, "/api/contact", "", tt.body)
			if tt.extra == nil {
				checkCodeAndData(t, tt, rec)
				assert.Empty(t, f.mailSvc.SentMessages())
				return
			}

			assert.Equal(t, tt.wantCode, rec.Code, rec.Body.String())
			sent := f.mailSvc.SentMessages()
			require.Len(t, sent, 1)
			assert.Equal(t, f.conf.ContactInbox, sent[0].To[0])
			assert.Equal(t, "sari@test.id", sent[0].ReplyTo.Address)
			assert.True(t, strings.Contains(sent[0].TextContent, tt.extra.(string)))
		})
	}
}
