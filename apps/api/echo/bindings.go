package echoapi

import (
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/trezcool/schoolsite/core"
	"github.com/trezcool/schoolsite/core/auth"
	"github.com/trezcool/schoolsite/core/content"
	"github.com/trezcool/schoolsite/core/user"
)

var (
	orderingParam = "ordering"
	maxPageLimit  = 100
)

type Ordering struct {
	Orderings []core.DBOrdering
}

func (ord *Ordering) Bind(ctx echo.Context) {
	val := ctx.QueryParam(orderingParam)
	if val == "" {
		return
	}
	for _, field := range strings.Split(val, ",") {
		field = strings.TrimSpace(field)
		descending := strings.HasPrefix(field, "-")
		if descending {
			field = field[1:] // drop "-"
		}
		if field == "" {
			continue
		}
		ord.Orderings = append(ord.Orderings, core.DBOrdering{Field: field, Ascending: !descending})
	}
}

// bindPage reads ?limit= and ?offset=. limit is capped at maxPageLimit.
func bindPage(ctx echo.Context) (core.Pagination, error) {
	var page core.Pagination
	var fields []core.FieldError

	if v := ctx.QueryParam("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			fields = append(fields, core.FieldError{Field: "limit", Error: "must be a positive integer"})
		} else if n > maxPageLimit {
			n = maxPageLimit
		}
		page.Limit = n
	}
	if v := ctx.QueryParam("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			fields = append(fields, core.FieldError{Field: "offset", Error: "must be a positive integer"})
		}
		page.Offset = n
	}
	if fields != nil {
		return core.Pagination{}, core.NewValidationError(nil, fields...)
	}
	return page, nil
}

// bindUserFilter reads ?search=&role=&is_active=&created_from=&created_to=.
func bindUserFilter(ctx echo.Context) (user.QueryFilter, error) {
	params := ctx.QueryParams()
	filter := user.QueryFilter{Search: params.Get("search")}
	var fields []core.FieldError

	for _, r := range params["role"] {
		role, ok := auth.ParseRole(r)
		if !ok {
			fields = append(fields, core.FieldError{Field: "role", Error: "unknown role " + strconv.Quote(r)})
			continue
		}
		filter.Roles = append(filter.Roles, role)
	}
	if v := params.Get("is_active"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			fields = append(fields, core.FieldError{Field: "is_active", Error: "must be a boolean"})
		} else {
			filter.IsActive = &b
		}
	}
	for name, dst := range map[string]*time.Time{"created_from": &filter.CreatedFrom, "created_to": &filter.CreatedTo} {
		if v := params.Get(name); v != "" {
			t, err := time.Parse(time.RFC3339, v)
			if err != nil {
				fields = append(fields, core.FieldError{Field: name, Error: "must be an RFC3339 time"})
				continue
			}
			*dst = t
		}
	}
	if fields != nil {
		return user.QueryFilter{}, core.NewValidationError(nil, fields...)
	}
	return filter, nil
}

func bindContentFilter(ctx echo.Context) content.QueryFilter {
	return content.QueryFilter{Search: ctx.QueryParam("search")}
}
