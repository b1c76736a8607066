package tests

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"

	. "github.com/trezcool/schoolsite/apps/api/echo"
	"github.com/trezcool/schoolsite/core"
	"github.com/trezcool/schoolsite/core/content"
	"github.com/trezcool/schoolsite/core/user"
	emailsvc "github.com/trezcool/schoolsite/services/email"
	mediasvc "github.com/trezcool/schoolsite/services/media"
	tokensvc "github.com/trezcool/schoolsite/services/tokens"
	inmemdb "github.com/trezcool/schoolsite/storage/database/inmem"
	testutil "github.com/trezcool/schoolsite/tests"
)

var (
	errMissingToken = httpErr{Error: "missing or malformed jwt"}
	errInvalidToken = httpErr{Error: "invalid or expired jwt"}
	errRevoked      = httpErr{Error: "token has been revoked"}
	errForbidden    = httpErr{Error: "permission denied"}
	errNotFound     = httpErr{Error: "not found"}
)

type fixture struct {
	conf        *core.Config
	app         *Server
	usrRepo     user.Repository
	contentRepo content.Repository
	mailSvc     *emailsvc.ConsoleServiceMock
	media       *mediasvc.LocalStorage
}

func setup(t *testing.T) *fixture {
	conf := testutil.Config(t)
	logger := testutil.Logger(conf)

	// set up DB & repos
	db := inmemdb.Open()
	usrRepo := inmemdb.NewUserRepository(db)
	contentRepo := inmemdb.NewContentRepository(db)

	// set up services
	mailSvc := emailsvc.NewConsoleServiceMock(conf, logger)
	media, err := mediasvc.NewLocalStorage(conf.Media.Dir, conf.Media.BaseURL)
	if err != nil {
		t.Fatalf("NewLocalStorage() failed: %v", err)
	}

	// set up server
	app := NewServer(
		"",                      /* addr */
		make(chan os.Signal, 1), /* shutdown */
		&Deps{
			Conf:           conf,
			Logger:         logger,
			UserSvc:        user.NewService(usrRepo, mailSvc, conf),
			ContentSvc:     content.NewService(contentRepo, media, logger),
			MailSvc:        mailSvc,
			Denylist:       tokensvc.NewMemoryDenylist(),
			DisableReqLogs: true,
		},
	)
	return &fixture{
		conf:        conf,
		app:         app,
		usrRepo:     usrRepo,
		contentRepo: contentRepo,
		mailSvc:     mailSvc,
		media:       media,
	}
}

type httpErr struct {
	Error string `json:"error"`
}

type httpTest struct {
	name     string
	method   string
	path     string
	body     []byte
	token    string
	wantCode int
	wantData []byte
	extra    interface{}
}

func newAuthRequest(method, path, token string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	if len(data) > 0 {
		body.Write(data[0])
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	return req, rec
}

func newRequest(method, path string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	return newAuthRequest(method, path, "", data...)
}

func (f *fixture) do(method, path, token string, data ...[]byte) *httptest.ResponseRecorder {
	req, rec := newAuthRequest(method, path, token, data...)
	f.app.ServeHTTP(rec, req)
	return rec
}

func getToken(t *testing.T, app *Server, usr user.User) string {
	token, err := app.Tokens().Issue(usr)
	if err != nil {
		t.Fatalf("getToken() failed: %v", err)
	}
	return token
}

func marchallObj(t *testing.T, obj interface{}) []byte {
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marchallObj() failed: %v", err)
	}
	return data
}

func marchallList(t *testing.T, objs ...interface{}) []byte {
	if objs == nil {
		objs = []interface{}{}
	}
	data, err := json.Marshal(objs)
	if err != nil {
		t.Fatalf("marchallList() failed: %v", err)
	}
	return data
}

func jsonBytesEqual(t *testing.T, b1, b2 []byte) (bool, error) {
	var j1, j2 interface{}
	if err := json.Unmarshal(b1, &j1); err != nil {
		return false, err
	}
	if err := json.Unmarshal(b2, &j2); err != nil {
		return false, err
	}
	if reflect.DeepEqual(j1, j2) {
		return true, nil
	}
	if j1 == nil || j2 == nil {
		return false, nil
	}
	if _, ok := j1.([]interface{}); !ok {
		return false, nil
	}
	return assert.ElementsMatch(t, j1, j2), nil
}

func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	if rec.Code != tt.wantCode {
		t.Errorf("failed! code = %v; wantCode %v", rec.Code, tt.wantCode)
	}
	if tt.wantData == nil {
		if rec.Body.Len() != 0 {
			t.Errorf("failed! data = %v; want no content", rec.Body.String())
		}
		return
	}
	ok, err := jsonBytesEqual(t, rec.Body.Bytes(), tt.wantData)
	if err != nil {
		t.Errorf("jsonBytesEqual() failed to compare; err %v", err)
	}
	if !ok {
		t.Errorf("failed! data = %v; wantData %v", rec.Body.String(), string(tt.wantData))
	}
}
