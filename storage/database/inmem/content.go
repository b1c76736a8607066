package inmemdb

import (
	"context"
	"sort"
	"strings"

	"github.com/trezcool/schoolsite/core"
	"github.com/trezcool/schoolsite/core/content"
)

type contentRepository struct {
	db *contentTable
}

var _ content.Repository = (*contentRepository)(nil)

func NewContentRepository(db *DB) *contentRepository {
	return &contentRepository{db: db.content}
}

func copyItem(item content.Item) content.Item {
	attrs := make(content.Attrs, len(item.Attrs))
	for k, v := range item.Attrs {
		attrs[k] = v
	}
	item.Attrs = attrs
	return item
}

var itemOrderings = map[string]func(a, b content.Item) int{
	"id":           func(a, b content.Item) int { return int(a.ID - b.ID) },
	"title":        func(a, b content.Item) int { return strings.Compare(a.Title, b.Title) },
	"created_at":   func(a, b content.Item) int { return a.CreatedAt.Compare(b.CreatedAt) },
	"updated_at":   func(a, b content.Item) int { return a.UpdatedAt.Compare(b.UpdatedAt) },
	"published_at": func(a, b content.Item) int { return a.PublishedAt.Time.Compare(b.PublishedAt.Time) },
}

func (repo *contentRepository) ListItems(_ context.Context, kind string, filter content.QueryFilter, orderings []core.DBOrdering, page core.Pagination) ([]content.Item, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	items := make([]content.Item, 0)
	for _, item := range repo.db.table {
		if item.Kind == kind && filter.Matches(*item) {
			items = append(items, copyItem(*item))
		}
	}

	sort.SliceStable(items, func(i, j int) bool {
		for _, ord := range orderings {
			cmp, ok := itemOrderings[ord.Field]
			if !ok {
				continue
			}
			if c := cmp(items[i], items[j]); c != 0 {
				return (c < 0) == ord.Ascending
			}
		}
		// default: latest published first, then newest id
		if c := items[i].PublishedAt.Time.Compare(items[j].PublishedAt.Time); c != 0 {
			return c > 0
		}
		return items[i].ID > items[j].ID
	})
	return paginate(items, page), nil
}

func (repo *contentRepository) GetItem(_ context.Context, kind string, id int64) (content.Item, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if item, ok := repo.db.table[id]; ok && item.Kind == kind {
		return copyItem(*item), nil
	}
	return content.Item{}, content.ErrNotFound
}

func (repo *contentRepository) GetSingleton(_ context.Context, kind string) (content.Item, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	for _, item := range repo.db.table {
		if item.Kind == kind {
			return copyItem(*item), nil
		}
	}
	return content.Item{}, content.ErrNotFound
}

func (repo *contentRepository) CreateItem(_ context.Context, item content.Item) (content.Item, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	repo.db.pk++
	item.ID = repo.db.pk
	item.ImageURL = ""
	stored := copyItem(item)
	repo.db.table[item.ID] = &stored
	return copyItem(stored), nil
}

func (repo *contentRepository) UpdateItem(_ context.Context, item content.Item) (content.Item, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	orig, ok := repo.db.table[item.ID]
	if !ok || orig.Kind != item.Kind {
		return content.Item{}, content.ErrNotFound
	}
	item.CreatedAt = orig.CreatedAt
	item.ImageURL = ""
	stored := copyItem(item)
	repo.db.table[item.ID] = &stored
	return copyItem(stored), nil
}

func (repo *contentRepository) DeleteItem(_ context.Context, kind string, id int64) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if item, ok := repo.db.table[id]; ok && item.Kind == kind {
		delete(repo.db.table, id)
	}
	return nil
}
