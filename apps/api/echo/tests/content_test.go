package tests

import (
	"bytes"
	"encoding/json"
	"image"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/schoolsite/core/auth"
	"github.com/trezcool/schoolsite/core/content"
	testutil "github.com/trezcool/schoolsite/tests"
)

func newMultipartRequest(t *testing.T, method, path, token string, fields map[string]string, filename string, file []byte) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	if filename != "" {
		part, err := w.CreateFormFile("image", filename)
		require.NoError(t, err)
		_, err = part.Write(file)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req, httptest.NewRecorder()
}

func pngFile(t *testing.T) []byte {
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 4, 4))))
	return buf.Bytes()
}

func decodeItem(t *testing.T, rec *httptest.ResponseRecorder) content.Item {
	var item content.Item
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &item), rec.Body.String())
	return item
}

func Test_contentApi_access(t *testing.T) {
	f := setup(t)
	admin := testutil.CreateUser(t, f.usrRepo, "Admin", "admin@test.id", "", auth.RoleAdmin, true)
	guru := testutil.CreateUser(t, f.usrRepo, "Bu Guru", "guru@test.id", "", auth.RoleGuru, true)
	usr := testutil.CreateUser(t, f.usrRepo, "Siswa", "siswa@test.id", "", auth.RoleUser, true)
	adminToken, guruToken, usrToken := getToken(t, f.app, admin), getToken(t, f.app, guru), getToken(t, f.app, usr)

	news := testutil.CreateItem(t, f.contentRepo, "news", "Libur semester", nil)
	student := testutil.CreateItem(t, f.contentRepo, "student", "Andi", content.Attrs{"nis": "001", "class": "7A"})

	newsBody := []byte(`{"title":"Upacara"}`)
	teacherBody := []byte(`{"title":"Pak Budi","attrs":{"subject":"Matematika"}}`)

	tests := []httpTest{
		{name: "public list", method: http.MethodGet, path: "/api/news", wantCode: http.StatusOK},
		{name: "public detail", method: http.MethodGet, path: "/api/news/" + itoa(news.ID), wantCode: http.StatusOK},
		{name: "public singleton", method: http.MethodGet, path: "/api/history", wantCode: http.StatusNoContent},
		{name: "students hidden from anonymous", method: http.MethodGet, path: "/api/student", wantCode: http.StatusUnauthorized},
		{name: "students hidden from users", method: http.MethodGet, path: "/api/student/" + itoa(student.ID), token: usrToken, wantCode: http.StatusForbidden},
		{name: "students visible to guru", method: http.MethodGet, path: "/api/student", token: guruToken, wantCode: http.StatusOK},
		{name: "anonymous cannot write", method: http.MethodPost, path: "/api/news", body: newsBody, wantCode: http.StatusUnauthorized},
		{name: "user cannot write news", method: http.MethodPost, path: "/api/news", body: newsBody, token: usrToken, wantCode: http.StatusForbidden},
		{name: "guru writes news", method: http.MethodPost, path: "/api/news", body: newsBody, token: guruToken, wantCode: http.StatusCreated},
		{name: "guru cannot write teachers", method: http.MethodPost, path: "/api/teacher", body: teacherBody, token: guruToken, wantCode: http.StatusForbidden},
		{name: "admin writes teachers", method: http.MethodPost, path: "/api/teacher", body: teacherBody, token: adminToken, wantCode: http.StatusCreated},
		{name: "guru cannot edit the profile", method: http.MethodPut, path: "/api/profile", body: []byte(`{}`), token: guruToken, wantCode: http.StatusForbidden},
		{name: "unknown kind", method: http.MethodGet, path: "/api/homework", wantCode: http.StatusNotFound},
		{name: "bad id", method: http.MethodGet, path: "/api/news/abc", wantCode: http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(tt.method, tt.path, tt.token, tt.body)
			assert.Equal(t, tt.wantCode, rec.Code, rec.Body.String())
		})
	}
}

func Test_contentApi_collection(t *testing.T) {
	f := setup(t)
	guru := testutil.CreateUser(t, f.usrRepo, "Bu Guru", "guru@test.id", "", auth.RoleGuru, true)
	token := getToken(t, f.app, guru)

	now := time.Now()
	older := testutil.CreateItem(t, f.contentRepo, "news", "Pendaftaran dibuka", nil, now.Add(-48*time.Hour))
	old := testutil.CreateItem(t, f.contentRepo, "news", "Lomba cerdas cermat", nil, now.Add(-24*time.Hour))
	testutil.CreateItem(t, f.contentRepo, "announcement", "Rapat", nil)

	t.Run("list", func(t *testing.T) {
		tests := []httpTest{
			{name: "latest first", path: "/api/news", wantData: marchallList(t, old, older)},
			{name: "search", path: "/api/news?search=lomba", wantData: marchallList(t, old)},
			{name: "ordering", path: "/api/news?ordering=title", wantData: marchallList(t, old, older)},
			{name: "page", path: "/api/news?limit=1&offset=1", wantData: marchallList(t, older)},
			{name: "bad page", path: "/api/news?offset=-1", wantCode: http.StatusBadRequest, wantData: []byte(`{"offset":"must be a positive integer"}`)},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				if tt.wantCode == 0 {
					tt.wantCode = http.StatusOK
				}
				rec := f.do(http.MethodGet, tt.path, "")
				assert.Equal(t, tt.wantCode, rec.Code)
				assert.JSONEq(t, string(tt.wantData), rec.Body.String())
			})
		}
	})

	t.Run("validation", func(t *testing.T) {
		rec := f.do(http.MethodPost, "/api/news", token, []byte(`{"attrs":{"colour":"red"}}`))
		checkCodeAndData(t, httpTest{
			wantCode: http.StatusBadRequest,
			wantData: []byte(`{"title":"this field is required","attrs.colour":"unknown attribute"}`),
		}, rec)
	})

	t.Run("create, update and delete with an image", func(t *testing.T) {
		req, rec := newMultipartRequest(t, http.MethodPost, "/api/news", token,
			map[string]string{"title": "Juara lomba", "body": "Selamat!", "attrs.category": "prestasi"}, "juara.png", pngFile(t))
		f.app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		item := decodeItem(t, rec)
		assert.Equal(t, "prestasi", item.Attrs["category"])
		assert.Equal(t, guru.ID, item.AuthorID.String)
		require.NotEmpty(t, item.ImageURL)

		// uploaded images are served back
		img := f.do(http.MethodGet, item.ImageURL, "")
		assert.Equal(t, http.StatusOK, img.Code)
		assert.Equal(t, pngFile(t), img.Body.Bytes())

		rec = f.do(http.MethodPut, "/api/news/"+itoa(item.ID), token, []byte(`{"title":"Juara umum","attrs":{"category":"prestasi"}}`))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		updated := decodeItem(t, rec)
		assert.Equal(t, "Juara umum", updated.Title)
		assert.Equal(t, item.ImageURL, updated.ImageURL, "image kept")

		rec = f.do(http.MethodDelete, "/api/news/"+itoa(item.ID), token)
		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.Equal(t, http.StatusNotFound, f.do(http.MethodGet, "/api/news/"+itoa(item.ID), "").Code)
		assert.Equal(t, http.StatusNotFound, f.do(http.MethodGet, item.ImageURL, "").Code)
	})

	t.Run("rejected uploads", func(t *testing.T) {
		req, rec := newMultipartRequest(t, http.MethodPost, "/api/gallery", token, nil, "evil.png", []byte("<?php echo 1; ?>"))
		f.app.ServeHTTP(rec, req)
		checkCodeAndData(t, httpTest{wantCode: http.StatusBadRequest, wantData: []byte(`{"image":"uploaded file is not an image"}`)}, rec)

		big := append(pngFile(t), make([]byte, f.conf.Media.MaxUploadBytes)...)
		req, rec = newMultipartRequest(t, http.MethodPost, "/api/gallery", token, nil, "big.png", big)
		f.app.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	})

	t.Run("ids do not cross kinds", func(t *testing.T) {
		assert.Equal(t, http.StatusNotFound, f.do(http.MethodGet, "/api/announcement/"+itoa(old.ID), "").Code)
		assert.Equal(t, http.StatusNotFound, f.do(http.MethodDelete, "/api/announcement/"+itoa(old.ID), token).Code)
	})
}

func Test_contentApi_singleton(t *testing.T) {
	f := setup(t)
	admin := testutil.CreateUser(t, f.usrRepo, "Admin", "admin@test.id", "", auth.RoleAdmin, true)
	token := getToken(t, f.app, admin)

	rec := f.do(http.MethodGet, "/api/profile", "")
	assert.Equal(t, http.StatusNoContent, rec.Code, "absent until created")
	assert.Empty(t, rec.Body.Bytes())

	rec = f.do(http.MethodPut, "/api/profile", token, []byte(`{"attrs":{"vision":"Cerdas","mission":"Berakhlak","email":"not-an-email"}}`))
	checkCodeAndData(t, httpTest{wantCode: http.StatusBadRequest, wantData: []byte(`{"attrs.email":"invalid email address"}`)}, rec)

	rec = f.do(http.MethodPut, "/api/profile", token, []byte(`{"attrs":{"vision":"Cerdas","mission":"Berakhlak"}}`))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decodeItem(t, rec)

	rec = f.do(http.MethodPut, "/api/profile", token, []byte(`{"attrs":{"vision":"Cerdas dan santun","mission":"Berakhlak"}}`))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, created.ID, decodeItem(t, rec).ID)

	rec = f.do(http.MethodGet, "/api/profile", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Cerdas dan santun", decodeItem(t, rec).Attrs["vision"])

	assert.Equal(t, http.StatusNoContent, f.do(http.MethodDelete, "/api/profile", token).Code)
	assert.Equal(t, http.StatusNotFound, f.do(http.MethodDelete, "/api/profile", token).Code)
	assert.Equal(t, http.StatusNoContent, f.do(http.MethodGet, "/api/profile", "").Code)
}

func Test_contentApi_kinds(t *testing.T) {
	f := setup(t)
	rec := f.do(http.MethodGet, "/api/kinds", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var kinds []struct {
		Name      string
		Singleton bool
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &kinds))
	assert.Len(t, kinds, len(content.Kinds()))
}

func itoa(id int64) string { return strconv.FormatInt(id, 10) }

