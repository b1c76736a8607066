package content

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/schoolsite/core"
	"github.com/trezcool/schoolsite/core/auth"
)

var (
	ErrNotFound     = fmt.Errorf("item %w", core.ErrNotFound)
	ErrNotAnImage   = errors.New("uploaded file is not an image")
	ErrWrongKindUse = errors.New("operation not supported by this kind")
)

type (
	Repository interface {
		ListItems(ctx context.Context, kind string, filter QueryFilter, orderings []core.DBOrdering, page core.Pagination) ([]Item, error)
		GetItem(ctx context.Context, kind string, id int64) (Item, error)
		// GetSingleton returns the only item of kind, or ErrNotFound.
		GetSingleton(ctx context.Context, kind string) (Item, error)
		CreateItem(ctx context.Context, item Item) (Item, error)
		// UpdateItem saves every editable field of item, kind and id included in the lookup.
		UpdateItem(ctx context.Context, item Item) (Item, error)
		DeleteItem(ctx context.Context, kind string, id int64) error
	}

	// Media stores uploaded images.
	Media interface {
		Save(ctx context.Context, prefix, filename string, r io.Reader) (key string, err error)
		Delete(ctx context.Context, key string) error
		URL(key string) string
	}

	// Upload is an image sent along with an item.
	Upload struct {
		Filename string
		Content  io.Reader
	}

	Service struct {
		repo   Repository
		media  Media
		logger core.Logger
	}
)

func NewService(repo Repository, media Media, logger core.Logger) *Service {
	return &Service{repo: repo, media: media, logger: logger}
}

func (svc *Service) withURL(item Item) Item {
	if item.Image.Valid && item.Image.String != "" {
		item.ImageURL = svc.media.URL(item.Image.String)
	}
	return item
}

func (svc *Service) List(ctx context.Context, kind Kind, filter QueryFilter, orderings []core.DBOrdering, page core.Pagination) ([]Item, error) {
	if kind.Singleton {
		return nil, ErrWrongKindUse
	}
	filter.Clean()
	items, err := svc.repo.ListItems(ctx, kind.Name, filter, orderings, page)
	if err != nil {
		return nil, errors.Wrapf(err, "listing %s", kind.Name)
	}
	for i := range items {
		items[i] = svc.withURL(items[i])
	}
	return items, nil
}

func (svc *Service) Get(ctx context.Context, kind Kind, id int64) (Item, error) {
	if kind.Singleton {
		return Item{}, ErrWrongKindUse
	}
	item, err := svc.repo.GetItem(ctx, kind.Name, id)
	if err != nil {
		return Item{}, err
	}
	return svc.withURL(item), nil
}

func (svc *Service) Create(ctx context.Context, kind Kind, in ItemInput, img *Upload, author *auth.Principal) (Item, error) {
	if kind.Singleton {
		return Item{}, ErrWrongKindUse
	}
	if err := in.Validate(kind, img != nil); err != nil {
		return Item{}, err
	}

	now := time.Now().UTC()
	item := Item{Kind: kind.Name, CreatedAt: now}
	svc.apply(&item, in, author, now)

	key, err := svc.saveImage(ctx, kind, img)
	if err != nil {
		return Item{}, err
	}
	if key != "" {
		item.Image = null.StringFrom(key)
	}

	item, err = svc.repo.CreateItem(ctx, item)
	if err != nil {
		svc.deleteImage(ctx, key)
		return Item{}, errors.Wrapf(err, "creating %s", kind.Name)
	}
	return svc.withURL(item), nil
}

func (svc *Service) Update(ctx context.Context, kind Kind, id int64, in ItemInput, img *Upload, author *auth.Principal) (Item, error) {
	if kind.Singleton {
		return Item{}, ErrWrongKindUse
	}
	item, err := svc.repo.GetItem(ctx, kind.Name, id)
	if err != nil {
		return Item{}, err
	}
	return svc.replace(ctx, kind, item, in, img, author)
}

func (svc *Service) Delete(ctx context.Context, kind Kind, id int64) error {
	if kind.Singleton {
		return ErrWrongKindUse
	}
	item, err := svc.repo.GetItem(ctx, kind.Name, id)
	if err != nil {
		return err
	}
	if err = svc.repo.DeleteItem(ctx, kind.Name, id); err != nil {
		return errors.Wrapf(err, "deleting %s", kind.Name)
	}
	svc.deleteImage(ctx, item.Image.String)
	return nil
}

// GetSingleton returns ErrNotFound while the singleton has not been created.
func (svc *Service) GetSingleton(ctx context.Context, kind Kind) (Item, error) {
	if !kind.Singleton {
		return Item{}, ErrWrongKindUse
	}
	item, err := svc.repo.GetSingleton(ctx, kind.Name)
	if err != nil {
		return Item{}, err
	}
	return svc.withURL(item), nil
}

// PutSingleton creates the singleton or replaces its content. created reports which one happened.
func (svc *Service) PutSingleton(ctx context.Context, kind Kind, in ItemInput, img *Upload, author *auth.Principal) (item Item, created bool, err error) {
	if !kind.Singleton {
		return Item{}, false, ErrWrongKindUse
	}
	existing, err := svc.repo.GetSingleton(ctx, kind.Name)
	switch {
	case err == nil:
		item, err = svc.replace(ctx, kind, existing, in, img, author)
		return item, false, err
	case !core.IsNotFound(err):
		return Item{}, false, errors.Wrapf(err, "getting %s", kind.Name)
	}

	if err = in.Validate(kind, img != nil); err != nil {
		return Item{}, false, err
	}
	now := time.Now().UTC()
	item = Item{Kind: kind.Name, CreatedAt: now}
	svc.apply(&item, in, author, now)

	key, err := svc.saveImage(ctx, kind, img)
	if err != nil {
		return Item{}, false, err
	}
	if key != "" {
		item.Image = null.StringFrom(key)
	}
	if item, err = svc.repo.CreateItem(ctx, item); err != nil {
		svc.deleteImage(ctx, key)
		return Item{}, false, errors.Wrapf(err, "creating %s", kind.Name)
	}
	return svc.withURL(item), true, nil
}

func (svc *Service) DeleteSingleton(ctx context.Context, kind Kind) error {
	if !kind.Singleton {
		return ErrWrongKindUse
	}
	item, err := svc.repo.GetSingleton(ctx, kind.Name)
	if err != nil {
		return err
	}
	if err = svc.repo.DeleteItem(ctx, kind.Name, item.ID); err != nil {
		return errors.Wrapf(err, "deleting %s", kind.Name)
	}
	svc.deleteImage(ctx, item.Image.String)
	return nil
}

func (svc *Service) replace(ctx context.Context, kind Kind, item Item, in ItemInput, img *Upload, author *auth.Principal) (Item, error) {
	if err := in.Validate(kind, img != nil || item.Image.Valid); err != nil {
		return Item{}, err
	}
	svc.apply(&item, in, author, time.Now().UTC())

	oldKey := item.Image.String
	newKey, err := svc.saveImage(ctx, kind, img)
	if err != nil {
		return Item{}, err
	}
	if newKey != "" {
		item.Image = null.StringFrom(newKey)
	}

	updated, err := svc.repo.UpdateItem(ctx, item)
	if err != nil {
		svc.deleteImage(ctx, newKey)
		if core.IsNotFound(err) {
			return Item{}, err
		}
		return Item{}, errors.Wrapf(err, "updating %s", kind.Name)
	}
	if newKey != "" {
		svc.deleteImage(ctx, oldKey)
	}
	return svc.withURL(updated), nil
}

func (svc *Service) apply(item *Item, in ItemInput, author *auth.Principal, now time.Time) {
	item.Title = in.Title
	item.Body = in.Body
	item.Attrs = in.Attrs
	if item.Attrs == nil {
		item.Attrs = Attrs{}
	}
	if in.PublishedAt != nil {
		item.PublishedAt = null.TimeFrom(in.PublishedAt.UTC())
	} else if !item.PublishedAt.Valid {
		item.PublishedAt = null.TimeFrom(now)
	}
	if author != nil {
		item.AuthorID = null.StringFrom(author.ID)
	}
	item.UpdatedAt = now
}

func (svc *Service) saveImage(ctx context.Context, kind Kind, img *Upload) (string, error) {
	if img == nil {
		return "", nil
	}
	content, err := sniffImage(img.Content)
	if err != nil {
		return "", err
	}
	key, err := svc.media.Save(ctx, kind.Name, path.Base(img.Filename), content)
	return key, errors.Wrap(err, "saving image")
}

func (svc *Service) deleteImage(ctx context.Context, key string) {
	if key == "" {
		return
	}
	if err := svc.media.Delete(ctx, key); err != nil {
		svc.logger.Warn("deleting image "+key, err)
	}
}

// sniffImage rejects content that does not look like an image and returns a reader
// positioned at the start of the content.
func sniffImage(r io.Reader) (io.Reader, error) {
	head := make([]byte, 512)
	n, err := io.ReadFull(r, head)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return nil, errors.Wrap(err, "reading image")
	}
	head = head[:n]
	if !strings.HasPrefix(http.DetectContentType(head), "image/") {
		return nil, core.NewValidationError(ErrNotAnImage, core.FieldError{Field: "image", Error: ErrNotAnImage.Error()})
	}
	return io.MultiReader(bytes.NewReader(head), r), nil
}
