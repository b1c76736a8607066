package tests

import (
	"context"
	"encoding/json"
	"net/http"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	. "github.com/trezcool/schoolsite/apps/api/echo"
	"github.com/trezcool/schoolsite/core/auth"
	testutil "github.com/trezcool/schoolsite/tests"
)

const pwd = "Sek0lah!Maju"

func Test_authApi_login(t *testing.T) {
	f := setup(t)
	guru := testutil.CreateUser(t, f.usrRepo, "Bu Guru", "guru@test.id", pwd, auth.RoleGuru, true)
	testutil.CreateUser(t, f.usrRepo, "Pak Lama", "lama@test.id", pwd, auth.RoleGuru, false)

	tests := []httpTest{
		{
			name:     "missing fields",
			body:     []byte(`{}`),
			wantCode: http.StatusBadRequest,
			wantData: []byte(`{"email":"this field is required","password":"this field is required"}`),
		},
		{
			name:     "unknown email",
			body:     []byte(`{"email":"nobody@test.id","password":"` + pwd + `"}`),
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, httpErr{Error: "authentication failed"}),
		},
		{
			name:     "wrong password",
			body:     []byte(`{"email":"guru@test.id","password":"nope"}`),
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, httpErr{Error: "authentication failed"}),
		},
		{
			name:     "deactivated account",
			body:     []byte(`{"email":"lama@test.id","password":"` + pwd + `"}`),
			wantCode: http.StatusForbidden,
			wantData: marchallObj(t, httpErr{Error: "account deactivated"}),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(http.MethodPost, "/api/auth/login", "", tt.body)
			checkCodeAndData(t, tt, rec)
		})
	}

	t.Run("success", func(t *testing.T) {
		rec := f.do(http.MethodPost, "/api/auth/login", "", []byte(`{"email":" GURU@test.id ","password":"`+pwd+`"}`))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var resp struct {
			Token string
			User  struct {
				ID        string
				Email     string
				Role      auth.Role
				LastLogin *time.Time `json:"last_login"`
			}
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.NotEmpty(t, resp.Token)
		assert.Equal(t, guru.ID, resp.User.ID)
		assert.Equal(t, auth.RoleGuru, resp.User.Role)
		assert.NotNil(t, resp.User.LastLogin)
		assert.NotContains(t, rec.Body.String(), "password")

		me := f.do(http.MethodGet, "/api/auth/me", resp.Token)
		assert.Equal(t, http.StatusOK, me.Code)
		assert.Contains(t, me.Body.String(), `"email":"guru@test.id"`)
	})
}

func Test_authApi_tokens(t *testing.T) {
	f := setup(t)
	admin := testutil.CreateUser(t, f.usrRepo, "Admin", "admin@test.id", pwd, auth.RoleAdmin, true)
	token := getToken(t, f.app, admin)

	tests := []httpTest{
		{name: "no token", method: http.MethodGet, path: "/api/auth/me", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{name: "garbage token", method: http.MethodGet, path: "/api/auth/me", token: "a.b.c", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errInvalidToken)},
		{name: "refresh", method: http.MethodPost, path: "/api/auth/refresh", token: token, wantCode: http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(tt.method, tt.path, tt.token)
			if tt.wantData == nil {
				assert.Equal(t, tt.wantCode, rec.Code, rec.Body.String())
				return
			}
			checkCodeAndData(t, tt, rec)
		})
	}

	t.Run("token signed with another key", func(t *testing.T) {
		conf := testutil.Config(t)
		conf.SecretKey = "another-key"
		forged, err := NewTokenIssuer(conf).Issue(admin)
		require.NoError(t, err)

		rec := f.do(http.MethodGet, "/api/users", forged)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("refresh window expired", func(t *testing.T) {
		claims := f.app.Tokens().Claims(admin, time.Now().Add(-48*time.Hour).Unix())
		old, err := f.app.Tokens().Sign(claims)
		require.NoError(t, err)

		rec := f.do(http.MethodPost, "/api/auth/refresh", old)
		checkCodeAndData(t, httpTest{wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "refresh has expired"})}, rec)
	})

	t.Run("logout revokes the token", func(t *testing.T) {
		tok := getToken(t, f.app, admin)
		assert.Equal(t, http.StatusOK, f.do(http.MethodGet, "/api/users", tok).Code)

		rec := f.do(http.MethodPost, "/api/auth/logout", tok)
		assert.Equal(t, http.StatusNoContent, rec.Code)

		rec = f.do(http.MethodGet, "/api/users", tok)
		checkCodeAndData(t, httpTest{wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errRevoked)}, rec)

		// other sessions are untouched
		assert.Equal(t, http.StatusOK, f.do(http.MethodGet, "/api/users", token).Code)
	})

	t.Run("deleted user", func(t *testing.T) {
		gone := testutil.CreateUser(t, f.usrRepo, "Gone", "gone@test.id", pwd, auth.RoleUser, true)
		tok := getToken(t, f.app, gone)
		require.NoError(t, f.usrRepo.DeleteUsersByID(context.Background(), gone.ID))

		rec := f.do(http.MethodGet, "/api/auth/me", tok)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func Test_authApi_passwordReset(t *testing.T) {
	f := setup(t)
	guru := testutil.CreateUser(t, f.usrRepo, "Bu Guru", "guru@test.id", pwd, auth.RoleGuru, true)

	rec := f.do(http.MethodPost, "/api/auth/password-reset", "", []byte(`{"email":"nobody@test.id"}`))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, f.mailSvc.SentMessages(), "unknown emails are not told apart")

	rec = f.do(http.MethodPost, "/api/auth/password-reset", "", []byte(`{"email":"guru@test.id"}`))
	assert.Equal(t, http.StatusOK, rec.Code)
	sent := f.mailSvc.SentMessages()
	require.Len(t, sent, 1)
	assert.Equal(t, guru.Email, sent[0].To[0].Address)

	m := regexp.MustCompile(`/password-reset/([^/\s]+)/([^/\s]+)`).FindStringSubmatch(sent[0].TextContent)
	require.Len(t, m, 3, sent[0].TextContent)
	uid, token := m[1], m[2]

	newPwd := "Baru!Sekolah9"
	confirm := func(uid, token string) []byte {
		return marchallObj(t, map[string]string{"uid": uid, "token": token, "password": newPwd, "password_confirm": newPwd})
	}

	rec = f.do(http.MethodPost, "/api/auth/password-reset/confirm", "", confirm(uid, "bad-token"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(http.MethodPost, "/api/auth/password-reset/confirm", "", confirm(uid, token))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = f.do(http.MethodPost, "/api/auth/login", "", []byte(`{"email":"guru@test.id","password":"`+newPwd+`"}`))
	assert.Equal(t, http.StatusOK, rec.Code)

	// the link works once
	rec = f.do(http.MethodPost, "/api/auth/password-reset/confirm", "", confirm(uid, token))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
