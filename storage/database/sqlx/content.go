package sqlxrepos

import (
	"context"
	"fmt"

	"github.com/pkg/errors"

	"github.com/trezcool/schoolsite/core"
	"github.com/trezcool/schoolsite/core/content"
)

const itemColumns = `id, kind, title, body, image, attrs, published_at, author_id, created_at, updated_at`

var itemOrderings = map[string]string{
	"id":           "id",
	"title":        "title",
	"created_at":   "created_at",
	"updated_at":   "updated_at",
	"published_at": "published_at",
}

type contentRepository struct {
	db core.DBExecutor
}

var _ content.Repository = (*contentRepository)(nil)

func NewContentRepository(db core.DBExecutor) *contentRepository {
	return &contentRepository{db: db}
}

func (repo *contentRepository) ListItems(ctx context.Context, kind string, filter content.QueryFilter, orderings []core.DBOrdering, page core.Pagination) ([]content.Item, error) {
	args := []interface{}{kind}
	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	q := `SELECT ` + itemColumns + ` FROM content_items WHERE kind = $1`
	if filter.Search != "" {
		p := arg("%" + filter.Search + "%")
		q += fmt.Sprintf(" AND (title ILIKE %s OR body ILIKE %s)", p, p)
	}
	q += ` ORDER BY ` + core.OrderByClause(orderings, itemOrderings, "published_at DESC NULLS LAST, id DESC")
	q += limitClause(page, arg)

	items := make([]content.Item, 0)
	if err := repo.db.SelectContext(ctx, &items, q, args...); err != nil {
		return nil, errors.Wrap(err, "selecting items")
	}
	return items, nil
}

func (repo *contentRepository) GetItem(ctx context.Context, kind string, id int64) (content.Item, error) {
	var item content.Item
	err := repo.db.GetContext(ctx, &item, `SELECT `+itemColumns+` FROM content_items WHERE kind = $1 AND id = $2`, kind, id)
	if err != nil {
		return content.Item{}, trapNoRows(err, content.ErrNotFound, "selecting item")
	}
	return item, nil
}

func (repo *contentRepository) GetSingleton(ctx context.Context, kind string) (content.Item, error) {
	var item content.Item
	err := repo.db.GetContext(ctx, &item, `SELECT `+itemColumns+` FROM content_items WHERE kind = $1 ORDER BY id LIMIT 1`, kind)
	if err != nil {
		return content.Item{}, trapNoRows(err, content.ErrNotFound, "selecting singleton")
	}
	return item, nil
}

func (repo *contentRepository) CreateItem(ctx context.Context, item content.Item) (content.Item, error) {
	q := `INSERT INTO content_items (kind, title, body, image, attrs, published_at, author_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9) RETURNING id`
	err := repo.db.GetContext(ctx, &item.ID, q,
		item.Kind, item.Title, item.Body, item.Image, item.Attrs, item.PublishedAt, item.AuthorID, item.CreatedAt, item.UpdatedAt)
	if err != nil {
		return content.Item{}, errors.Wrap(err, "inserting item")
	}
	return item, nil
}

func (repo *contentRepository) UpdateItem(ctx context.Context, item content.Item) (content.Item, error) {
	q := `UPDATE content_items
		SET title = $3, body = $4, image = $5, attrs = $6, published_at = $7, author_id = $8, updated_at = $9
		WHERE kind = $1 AND id = $2
		RETURNING ` + itemColumns
	var updated content.Item
	err := repo.db.GetContext(ctx, &updated, q,
		item.Kind, item.ID, item.Title, item.Body, item.Image, item.Attrs, item.PublishedAt, item.AuthorID, item.UpdatedAt)
	if err != nil {
		return content.Item{}, trapNoRows(err, content.ErrNotFound, "updating item")
	}
	return updated, nil
}

func (repo *contentRepository) DeleteItem(ctx context.Context, kind string, id int64) error {
	_, err := repo.db.ExecContext(ctx, `DELETE FROM content_items WHERE kind = $1 AND id = $2`, kind, id)
	return errors.Wrap(err, "deleting item")
}
