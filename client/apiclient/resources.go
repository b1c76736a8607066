package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/schoolsite/core/auth"
	"github.com/trezcool/schoolsite/core/content"
	"github.com/trezcool/schoolsite/core/user"
)

type (
	loginRequest struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}

	loginResponse struct {
		Token string     `json:"token"`
		User  *user.User `json:"user"`
	}

	// Query lists items. Zero fields are not sent.
	Query struct {
		Search   string
		Ordering string // e.g. "-published_at,title"
		Limit    int
		Offset   int
	}

	// Image is an upload sent along with an item.
	Image struct {
		Filename string
		Content  io.Reader
	}

	ContactMessage struct {
		Name    string `json:"name"`
		Email   string `json:"email"`
		Subject string `json:"subject"`
		Message string `json:"message"`
	}

	multipartBody struct {
		contentType string
		data        []byte
	}
)

// Login exchanges credentials for a principal. It is always sent anonymously.
func (c *Client) Login(ctx context.Context, email, password string) (*auth.Principal, error) {
	var resp loginResponse
	_, err := c.send(ctx, request{
		method: http.MethodPost,
		path:   "/api/auth/login",
		body:   loginRequest{Email: email, Password: password},
		creds:  Anonymous{},
	}, &resp)
	if err != nil {
		return nil, err
	}
	if resp.Token == "" || resp.User == nil {
		return nil, &Error{Kind: KindServer, Status: http.StatusOK, Message: "login response without token or user"}
	}
	return resp.User.Principal(resp.Token), nil
}

func (c *Client) Logout(ctx context.Context) error {
	return c.Do(ctx, http.MethodPost, "/api/auth/logout", nil, nil)
}

func (c *Client) Me(ctx context.Context) (user.User, error) {
	var usr user.User
	err := c.Do(ctx, http.MethodGet, "/api/auth/me", nil, &usr)
	return usr, err
}

// Users lists the user accounts. Admins only.
func (c *Client) Users(ctx context.Context, search string) ([]user.User, error) {
	var params map[string]string
	if search != "" {
		params = map[string]string{"search": search}
	}
	var users []user.User
	_, err := c.send(ctx, request{method: http.MethodGet, path: "/api/users", query: params}, &users)
	return users, err
}

func (c *Client) Kinds(ctx context.Context) ([]content.Kind, error) {
	var kinds []content.Kind
	err := c.Do(ctx, http.MethodGet, "/api/kinds", nil, &kinds)
	return kinds, err
}

func (c *Client) List(ctx context.Context, kind string, q Query) ([]content.Item, error) {
	params := map[string]string{}
	if q.Search != "" {
		params["search"] = q.Search
	}
	if q.Ordering != "" {
		params["ordering"] = q.Ordering
	}
	if q.Limit > 0 {
		params["limit"] = strconv.Itoa(q.Limit)
	}
	if q.Offset > 0 {
		params["offset"] = strconv.Itoa(q.Offset)
	}

	var items []content.Item
	_, err := c.send(ctx, request{method: http.MethodGet, path: "/api/" + kind, query: params}, &items)
	return items, err
}

func (c *Client) Get(ctx context.Context, kind string, id int64) (content.Item, error) {
	var item content.Item
	err := c.Do(ctx, http.MethodGet, itemPath(kind, id), nil, &item)
	return item, err
}

// Create sends in as JSON, or as a multipart form when img is set.
func (c *Client) Create(ctx context.Context, kind string, in content.ItemInput, img *Image) (content.Item, error) {
	return c.write(ctx, http.MethodPost, "/api/"+kind, in, img)
}

func (c *Client) Update(ctx context.Context, kind string, id int64, in content.ItemInput, img *Image) (content.Item, error) {
	return c.write(ctx, http.MethodPut, itemPath(kind, id), in, img)
}

func (c *Client) Delete(ctx context.Context, kind string, id int64) error {
	return c.Do(ctx, http.MethodDelete, itemPath(kind, id), nil, nil)
}

// GetSingleton returns found=false while the singleton has not been created:
// the backend answers 204, and 404 is read the same way unless StrictSingletons is set.
func (c *Client) GetSingleton(ctx context.Context, kind string) (content.Item, bool, error) {
	var item content.Item
	status, err := c.send(ctx, request{method: http.MethodGet, path: "/api/" + kind}, &item)
	if err != nil {
		if !c.strictSingletons && errors.Is(err, ErrNotFound) {
			return content.Item{}, false, nil
		}
		return content.Item{}, false, err
	}
	if status == http.StatusNoContent {
		return content.Item{}, false, nil
	}
	return item, true, nil
}

func (c *Client) PutSingleton(ctx context.Context, kind string, in content.ItemInput, img *Image) (content.Item, error) {
	return c.write(ctx, http.MethodPut, "/api/"+kind, in, img)
}

func (c *Client) DeleteSingleton(ctx context.Context, kind string) error {
	return c.Do(ctx, http.MethodDelete, "/api/"+kind, nil, nil)
}

func (c *Client) Contact(ctx context.Context, msg ContactMessage) error {
	return c.Do(ctx, http.MethodPost, "/api/contact", msg, nil)
}

func (c *Client) write(ctx context.Context, method, path string, in content.ItemInput, img *Image) (content.Item, error) {
	var body interface{} = in
	if img != nil {
		mb, err := newMultipartBody(in, img)
		if err != nil {
			return content.Item{}, err
		}
		body = mb
	}
	var item content.Item
	err := c.Do(ctx, method, path, body, &item)
	return item, err
}

func itemPath(kind string, id int64) string {
	return "/api/" + kind + "/" + strconv.FormatInt(id, 10)
}

func newMultipartBody(in content.ItemInput, img *Image) (*multipartBody, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	fields := map[string]string{"title": in.Title, "body": in.Body}
	if in.PublishedAt != nil {
		fields["published_at"] = in.PublishedAt.UTC().Format(time.RFC3339)
	}
	if len(in.Attrs) > 0 {
		attrs, err := json.Marshal(in.Attrs)
		if err != nil {
			return nil, errors.Wrap(err, "encoding attrs")
		}
		fields["attrs"] = string(attrs)
	}
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			return nil, errors.Wrap(err, "writing form field")
		}
	}

	fw, err := w.CreateFormFile("image", img.Filename)
	if err != nil {
		return nil, errors.Wrap(err, "creating form file")
	}
	if _, err = io.Copy(fw, img.Content); err != nil {
		return nil, errors.Wrap(err, "copying image")
	}
	if err = w.Close(); err != nil {
		return nil, errors.Wrap(err, "closing multipart writer")
	}
	return &multipartBody{contentType: w.FormDataContentType(), data: buf.Bytes()}, nil
}
