package main

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/trezcool/schoolsite/client/apiclient"
	"github.com/trezcool/schoolsite/client/nav"
	"github.com/trezcool/schoolsite/client/page"
	"github.com/trezcool/schoolsite/core/content"
)

// dashboardKinds are fetched together when the dashboard opens.
var dashboardKinds = []string{"news", "gallery", "announcement"}

const previewSize = 5

type views struct {
	api *apiclient.Client
}

func (v views) routes() []nav.Route {
	return nav.AdminRoutes(content.Kinds(), nav.Views{
		Home:      v.home,
		Login:     v.login,
		Dashboard: v.dashboard,
		Users:     v.users,
		Kind:      v.kind,
	})
}

func (v views) home(_ context.Context, w io.Writer, _ nav.Request) error {
	_, err := fmt.Fprintln(w, "Welcome! Run `login -email EMAIL` to manage the site.")
	return err
}

func (v views) login(_ context.Context, w io.Writer, _ nav.Request) error {
	_, err := fmt.Fprintln(w, "Please log in: `login -email EMAIL`.")
	return err
}

// dashboard loads its sections concurrently and prints them once all have settled.
func (v views) dashboard(ctx context.Context, w io.Writer, _ nav.Request) error {
	p := page.New(page.Options{})
	fetches := make(map[string]page.Fetch, len(dashboardKinds))
	for _, kind := range dashboardKinds {
		kind := kind
		fetches[kind] = func(ctx context.Context) (interface{}, bool, error) {
			items, err := v.api.List(ctx, kind, apiclient.Query{Ordering: "-published_at", Limit: previewSize})
			return items, true, err
		}
	}
	p.Mount(ctx, fetches)
	p.Wait()
	defer p.Unmount()

	for _, kind := range dashboardKinds {
		title := kind
		if k, ok := content.Lookup(kind); ok {
			title = k.Title
		}
		fmt.Fprintf(w, "\n-- %s --\n", title)

		r := p.State(kind)
		switch r.State {
		case page.Failed:
			fmt.Fprintf(w, "could not load %s: %s\n", kind, describeError(r.Err))
		case page.Ready:
			items, _ := r.Value.([]content.Item)
			if len(items) == 0 {
				fmt.Fprintln(w, "nothing yet")
				continue
			}
			for _, item := range items {
				fmt.Fprintf(w, "#%d %s\n", item.ID, itemLabel(item))
			}
		}
	}
	return nil
}

func (v views) users(ctx context.Context, w io.Writer, _ nav.Request) error {
	users, err := v.api.Users(ctx, "")
	if err != nil {
		_, werr := fmt.Fprintf(w, "could not load users: %s\n", describeError(err))
		return werr
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "EMAIL\tNAME\tROLE\tACTIVE")
	for _, u := range users {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%t\n", u.Email, u.Name, u.Role, u.IsActive)
	}
	return tw.Flush()
}

func (v views) kind(kind content.Kind) nav.RenderFunc {
	return func(ctx context.Context, w io.Writer, _ nav.Request) error {
		if kind.Singleton {
			return v.showSingleton(ctx, w, kind)
		}
		items, err := v.api.List(ctx, kind.Name, apiclient.Query{Ordering: "-published_at", Limit: 20})
		if err != nil {
			_, werr := fmt.Fprintf(w, "could not load %s: %s\n", kind.Name, describeError(err))
			return werr
		}
		return printItems(w, items)
	}
}

// showSingleton prints the item, or an empty create form while it does not exist.
func (v views) showSingleton(ctx context.Context, w io.Writer, kind content.Kind) error {
	item, found, err := v.api.GetSingleton(ctx, kind.Name)
	if err != nil {
		_, werr := fmt.Fprintf(w, "could not load %s: %s\n", kind.Name, describeError(err))
		return werr
	}
	if !found {
		return printCreateForm(w, kind)
	}
	return printItem(w, item)
}

func printItems(w io.Writer, items []content.Item) error {
	if len(items) == 0 {
		_, err := fmt.Fprintln(w, "nothing yet")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTITLE\tPUBLISHED")
	for _, item := range items {
		published := "-"
		if item.PublishedAt.Valid {
			published = item.PublishedAt.Time.Format("2006-01-02")
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\n", item.ID, itemLabel(item), published)
	}
	return tw.Flush()
}

func printItem(w io.Writer, item content.Item) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "id:\t%d\n", item.ID)
	fmt.Fprintf(tw, "title:\t%s\n", item.Title)
	if item.Body != "" {
		fmt.Fprintf(tw, "body:\t%s\n", item.Body)
	}
	if item.ImageURL != "" {
		fmt.Fprintf(tw, "image:\t%s\n", item.ImageURL)
	}
	keys := make([]string, 0, len(item.Attrs))
	for k := range item.Attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(tw, "%s:\t%s\n", k, item.Attrs[k])
	}
	if item.PublishedAt.Valid {
		fmt.Fprintf(tw, "published:\t%s\n", item.PublishedAt.Time.Format(time.RFC3339))
	}
	fmt.Fprintf(tw, "updated:\t%s\n", item.UpdatedAt.Format(time.RFC3339))
	return tw.Flush()
}

// printCreateForm shows the fields to fill in to create kind.
func printCreateForm(w io.Writer, kind content.Kind) error {
	fmt.Fprintf(w, "%s has not been created yet. Fill in:\n", kind.Title)
	args := []string{"create", kind.Name}
	if kind.TitleRequired {
		args = append(args, `-title ""`)
	} else {
		args = append(args, `[-title ""]`)
	}
	args = append(args, `[-body ""]`)
	for _, a := range kind.Attrs {
		if a.Required {
			args = append(args, fmt.Sprintf(`-attr %s=""`, a.Name))
		} else {
			args = append(args, fmt.Sprintf(`[-attr %s=""]`, a.Name))
		}
	}
	if kind.ImageRequired {
		args = append(args, "-image FILE")
	} else {
		args = append(args, "[-image FILE]")
	}
	_, err := fmt.Fprintln(w, "  "+strings.Join(args, " "))
	return err
}

func itemLabel(item content.Item) string {
	if item.Title != "" {
		return item.Title
	}
	if item.ImageURL != "" {
		return item.ImageURL
	}
	return "(untitled)"
}
