// Package apiclient dispatches requests to the school site API with the session's
// credentials attached and maps failures onto a small error taxonomy.
package apiclient

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/pkg/errors"
	"github.com/sendgrid/rest"
)

type Options struct {
	BaseURL string

	// Credentials is called before every request. Nil sends anonymous requests.
	Credentials func() Credentials

	// OnUnauthorized is called when the backend rejects the bearer token (401).
	OnUnauthorized func(ctx context.Context)

	// StrictSingletons reports a 404 on a singleton as an error instead of absence.
	StrictSingletons bool

	HTTPClient *http.Client
}

type Client struct {
	baseURL          string
	credentials      func() Credentials
	onUnauthorized   func(ctx context.Context)
	strictSingletons bool
	rest             *rest.Client
}

func New(opts Options) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	creds := opts.Credentials
	if creds == nil {
		creds = func() Credentials { return Anonymous{} }
	}
	return &Client{
		baseURL:          strings.TrimRight(opts.BaseURL, "/"),
		credentials:      creds,
		onUnauthorized:   opts.OnUnauthorized,
		strictSingletons: opts.StrictSingletons,
		rest:             &rest.Client{HTTPClient: httpClient},
	}
}

// request is one API call. body is JSON encoded unless it is a *multipartBody.
type request struct {
	method string
	path   string
	query  map[string]string
	body   interface{}
	creds  Credentials
}

// Do sends body (JSON, may be nil) to path and decodes the response into out (may be nil).
func (c *Client) Do(ctx context.Context, method, path string, body, out interface{}) error {
	_, err := c.send(ctx, request{method: method, path: path, body: body}, out)
	return err
}

// send returns the response status on success.
func (c *Client) send(ctx context.Context, r request, out interface{}) (int, error) {
	creds := r.creds
	if creds == nil {
		creds = c.credentials()
	}

	req := rest.Request{
		Method:      rest.Method(r.method),
		BaseURL:     c.baseURL + r.path,
		Headers:     map[string]string{"Accept": "application/json"},
		QueryParams: r.query,
	}
	if auth, ok := creds.authHeader(); ok {
		req.Headers["Authorization"] = auth
	}
	switch b := r.body.(type) {
	case nil:
	case *multipartBody:
		req.Headers["Content-Type"] = b.contentType
		req.Body = b.data
	default:
		data, err := json.Marshal(b)
		if err != nil {
			return 0, errors.Wrap(err, "encoding request body")
		}
		req.Headers["Content-Type"] = "application/json"
		req.Body = data
	}

	resp, err := c.roundTrip(ctx, req)
	if err != nil {
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		return 0, &Error{Kind: KindNetwork, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := newResponseError(resp.StatusCode, resp.Body)
		if apiErr.Kind == KindUnauthorized && c.onUnauthorized != nil {
			if _, bearer := creds.(Bearer); bearer {
				c.onUnauthorized(ctx)
			}
		}
		return resp.StatusCode, apiErr
	}

	if out != nil && resp.StatusCode != http.StatusNoContent && strings.TrimSpace(resp.Body) != "" {
		if err = json.Unmarshal([]byte(resp.Body), out); err != nil {
			return resp.StatusCode, errors.Wrapf(err, "decoding %s %s response", r.method, r.path)
		}
	}
	return resp.StatusCode, nil
}

func (c *Client) roundTrip(ctx context.Context, req rest.Request) (*rest.Response, error) {
	httpReq, err := rest.BuildRequestObject(req)
	if err != nil {
		return nil, err
	}
	res, err := c.rest.MakeRequest(httpReq.WithContext(ctx))
	if err != nil {
		return nil, err
	}
	return rest.BuildResponse(res)
}
