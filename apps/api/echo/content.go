package echoapi

import (
	"encoding/json"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/trezcool/schoolsite/core"
	"github.com/trezcool/schoolsite/core/auth"
	"github.com/trezcool/schoolsite/core/content"
)

// multipart overhead allowed on top of the image size limit
const formSlack = 64 << 10

type contentApi struct {
	svc      *content.Service
	kind     content.Kind
	maxBytes int64
}

func registerContentAPI(g *echo.Group, jwt echo.MiddlewareFunc, svc *content.Service, maxBytes int64) {
	g.GET("/kinds", queryKinds)

	for _, kind := range content.Kinds() {
		api := contentApi{svc: svc, kind: kind, maxBytes: maxBytes}
		path := "/api" + kind.Path()

		kg := g.Group(kind.Path())
		var read []echo.MiddlewareFunc
		if req, ok := kind.ReadRequirement(path); ok {
			read = append(read, jwt, requireMiddleware(req))
		}
		write := []echo.MiddlewareFunc{jwt, requireMiddleware(kind.WriteRequirement(path))}
		if maxBytes > 0 {
			write = append(write, middleware.BodyLimit(strconv.FormatInt(maxBytes+formSlack, 10)))
		}

		if kind.Singleton {
			kg.GET("", api.retrieveSingleton, read...)
			kg.PUT("", api.putSingleton, write...)
			kg.DELETE("", api.destroySingleton, write...)
			continue
		}
		kg.GET("", api.query, read...)
		kg.GET("/:id", api.retrieve, read...)
		kg.POST("", api.create, write...)
		kg.PUT("/:id", api.update, write...)
		kg.DELETE("/:id", api.destroy, write...)
	}
}

type kindResponse struct {
	Name       string      `json:"name"`
	Title      string      `json:"title"`
	Singleton  bool        `json:"singleton"`
	ReadRoles  []auth.Role `json:"read_roles"`
	WriteRoles []auth.Role `json:"write_roles"`
}

func queryKinds(ctx echo.Context) error {
	kinds := content.Kinds()
	resp := make([]kindResponse, 0, len(kinds))
	for _, k := range kinds {
		resp = append(resp, kindResponse{
			Name:       k.Name,
			Title:      k.Title,
			Singleton:  k.Singleton,
			ReadRoles:  k.ReadRoles,
			WriteRoles: k.WriteRoles,
		})
	}
	return ctx.JSON(http.StatusOK, resp)
}

// Handlers

func (api *contentApi) query(ctx echo.Context) error {
	page, err := bindPage(ctx)
	if err != nil {
		return err
	}
	ordering := new(Ordering)
	ordering.Bind(ctx)

	items, err := api.svc.List(ctx.Request().Context(), api.kind, bindContentFilter(ctx), ordering.Orderings, page)
	if err != nil {
		return err
	}
	if items == nil {
		items = []content.Item{}
	}
	return ctx.JSON(http.StatusOK, items)
}

func (api *contentApi) retrieve(ctx echo.Context) error {
	id, err := itemID(ctx)
	if err != nil {
		return err
	}
	item, err := api.svc.Get(ctx.Request().Context(), api.kind, id)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, item)
}

func (api *contentApi) create(ctx echo.Context) error {
	in, img, closeImg, err := api.bindInput(ctx)
	if err != nil {
		return err
	}
	defer closeImg()

	item, err := api.svc.Create(ctx.Request().Context(), api.kind, in, img, getContextPrincipal(ctx))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, item)
}

func (api *contentApi) update(ctx echo.Context) error {
	id, err := itemID(ctx)
	if err != nil {
		return err
	}
	in, img, closeImg, err := api.bindInput(ctx)
	if err != nil {
		return err
	}
	defer closeImg()

	item, err := api.svc.Update(ctx.Request().Context(), api.kind, id, in, img, getContextPrincipal(ctx))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, item)
}

func (api *contentApi) destroy(ctx echo.Context) error {
	id, err := itemID(ctx)
	if err != nil {
		return err
	}
	if err = api.svc.Delete(ctx.Request().Context(), api.kind, id); err != nil {
		return err
	}
	return ctx.NoContent(http.StatusNoContent)
}

// retrieveSingleton answers 204 while the singleton has not been created.
func (api *contentApi) retrieveSingleton(ctx echo.Context) error {
	item, err := api.svc.GetSingleton(ctx.Request().Context(), api.kind)
	if err != nil {
		if core.IsNotFound(err) {
			return ctx.NoContent(http.StatusNoContent)
		}
		return err
	}
	return ctx.JSON(http.StatusOK, item)
}

func (api *contentApi) putSingleton(ctx echo.Context) error {
	in, img, closeImg, err := api.bindInput(ctx)
	if err != nil {
		return err
	}
	defer closeImg()

	item, created, err := api.svc.PutSingleton(ctx.Request().Context(), api.kind, in, img, getContextPrincipal(ctx))
	if err != nil {
		return err
	}
	if created {
		return ctx.JSON(http.StatusCreated, item)
	}
	return ctx.JSON(http.StatusOK, item)
}

func (api *contentApi) destroySingleton(ctx echo.Context) error {
	if err := api.svc.DeleteSingleton(ctx.Request().Context(), api.kind); err != nil {
		return err
	}
	return ctx.NoContent(http.StatusNoContent)
}

func itemID(ctx echo.Context) (int64, error) {
	id, err := strconv.ParseInt(ctx.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, errHttpNotFound
	}
	return id, nil
}

// bindInput reads the item from a JSON body or from a multipart form carrying an
// optional "image" file. Attributes are sent as "attrs.<name>" form fields.
func (api *contentApi) bindInput(ctx echo.Context) (content.ItemInput, *content.Upload, func(), error) {
	noop := func() {}
	var in content.ItemInput

	if !strings.HasPrefix(ctx.Request().Header.Get(echo.HeaderContentType), echo.MIMEMultipartForm) {
		if err := ctx.Bind(&in); err != nil {
			return in, nil, noop, errors.Wrap(err, "binding to ItemInput")
		}
		return in, nil, noop, nil
	}

	form, err := ctx.MultipartForm()
	if err != nil {
		return in, nil, noop, echo.NewHTTPError(http.StatusBadRequest, "malformed multipart form").SetInternal(err)
	}
	if err = bindForm(form, &in); err != nil {
		return in, nil, noop, err
	}

	files := form.File["image"]
	if len(files) == 0 {
		return in, nil, noop, nil
	}
	fh := files[0]
	if api.maxBytes > 0 && fh.Size > api.maxBytes {
		return in, nil, noop, errFileTooLarge
	}
	f, err := fh.Open()
	if err != nil {
		return in, nil, noop, errors.Wrap(err, "opening uploaded file")
	}
	return in, &content.Upload{Filename: fh.Filename, Content: f}, func() { _ = f.Close() }, nil
}

func bindForm(form *multipart.Form, in *content.ItemInput) error {
	first := func(key string) string {
		if vs := form.Value[key]; len(vs) > 0 {
			return vs[0]
		}
		return ""
	}

	in.Title = first("title")
	in.Body = first("body")
	if v := first("published_at"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return core.NewFieldError("published_at", "must be an RFC3339 time")
		}
		in.PublishedAt = &t
	}

	in.Attrs = content.Attrs{}
	if v := first("attrs"); v != "" {
		if err := json.Unmarshal([]byte(v), &in.Attrs); err != nil {
			return core.NewFieldError("attrs", "must be a JSON object of strings")
		}
	}
	for key := range form.Value {
		if name := strings.TrimPrefix(key, "attrs."); name != key && name != "" {
			in.Attrs[name] = first(key)
		}
	}
	return nil
}
