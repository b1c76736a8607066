package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"golang.org/x/term"

	"github.com/trezcool/schoolsite/client/apiclient"
	"github.com/trezcool/schoolsite/client/nav"
	"github.com/trezcool/schoolsite/client/session"
	"github.com/trezcool/schoolsite/core"
	"github.com/trezcool/schoolsite/core/auth"
	"github.com/trezcool/schoolsite/core/content"
	"github.com/trezcool/schoolsite/storage/kv"
)

var (
	readPasswordFunc = term.ReadPassword // mockable

	errHelp = errors.New("help provided")
)

type commandLine struct {
	out     io.Writer
	logger  core.Logger
	session *session.Context
	api     *apiclient.Client
	router  *nav.Router
	layout  *nav.Layout
}

// newCommandLine wires the client stack: the session is restored from store,
// the API client reads its credentials and the router follows its changes.
func newCommandLine(ctx context.Context, conf config, store kv.Store, logger core.Logger, out io.Writer) (*commandLine, error) {
	sc := session.NewContext(ctx, session.NewStore(store, logger), nil, logger)
	api := apiclient.New(apiclient.Options{
		BaseURL:          conf.APIURL,
		Credentials:      sc.Credentials,
		OnUnauthorized:   sc.Invalidate,
		StrictSingletons: conf.StrictSingletons,
	})
	sc.SetAuthenticator(api)

	router, err := nav.NewRouter(sc, views{api: api}.routes(), nav.RouterOptions{
		Guard:      nav.AdminGuard(conf.Mismatch),
		AfterLogin: nav.DashboardPath,
	})
	if err != nil {
		return nil, err
	}
	return &commandLine{
		out:     out,
		logger:  logger,
		session: sc,
		api:     api,
		router:  router,
		layout:  nav.NewLayout(ctx, conf.AppName, router, store, logger),
	}, nil
}

func (cli *commandLine) Close() { cli.router.Close() }

func (cli *commandLine) printUsage() {
	fmt.Fprintln(cli.out, "Usage:")
	fmt.Fprintln(cli.out, "  login -email EMAIL [-next PATH] - log in, the password is prompted next")
	fmt.Fprintln(cli.out, "  logout - log out and revoke the session token")
	fmt.Fprintln(cli.out, "  whoami [-remote] - print the logged in user")
	fmt.Fprintln(cli.out, "  routes - list the admin pages and who may open them")
	fmt.Fprintln(cli.out, "  open PATH - render an admin page")
	fmt.Fprintln(cli.out, "  list KIND [-search S] [-ordering O] [-limit N] [-offset N] - list items")
	fmt.Fprintln(cli.out, "  show KIND [ID] - print an item, or the singleton of KIND")
	fmt.Fprintln(cli.out, "  create KIND [-title T] [-body B] [-attr NAME=VALUE]... [-image FILE] [-published RFC3339] - create an item, or save the singleton")
	fmt.Fprintln(cli.out, "  delete KIND [ID] - delete an item, or the singleton of KIND")
	fmt.Fprintln(cli.out, "  sidebar [toggle|collapse|expand] - show or change the sidebar")
}

func (cli *commandLine) newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(cli.out)
	return fs
}

func (cli *commandLine) run(ctx context.Context, args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}
	cmd, rest := args[1], args[2:]

	switch cmd {
	case "login":
		return cli.login(ctx, rest)
	case "logout":
		return cli.logout(ctx)
	case "whoami":
		return cli.whoami(ctx, rest)
	case "routes":
		return cli.routes()
	case "open":
		if len(rest) != 1 {
			cli.printUsage()
			return errHelp
		}
		_, err := cli.layout.Render(ctx, cli.out, rest[0])
		return err
	case "list":
		return cli.list(ctx, rest)
	case "show":
		return cli.show(ctx, rest)
	case "create":
		return cli.create(ctx, rest)
	case "delete":
		return cli.delete(ctx, rest)
	case "sidebar":
		return cli.sidebar(ctx, rest)
	default:
		cli.printUsage()
		return errHelp
	}
}

func (cli *commandLine) login(ctx context.Context, args []string) error {
	fs := cli.newFlagSet("login")
	email := fs.String("email", "", "The account email. The password will be prompted next.")
	next := fs.String("next", "", "The page to open once logged in.")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *email == "" {
		fs.Usage()
		return errHelp
	}

	fmt.Fprint(cli.out, "Enter password:")
	pwd, err := readPasswordFunc(int(syscall.Stdin))
	fmt.Fprintln(cli.out)
	if err != nil {
		return err
	}

	if *next != "" {
		cli.router.Navigate(ctx, *next) // remembered when it needs a login
	}
	out, err := cli.router.CompleteLogin(ctx, session.LoginInput{Email: *email, Password: string(pwd)})
	if err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "logged in as %s (%s)\n", out.Principal.Email, out.Principal.Role.Name())
	if out.Redirected() {
		fmt.Fprintf(cli.out, "%s is not available to you\n", out.Requested)
		return nil
	}
	_, err = cli.layout.Render(ctx, cli.out, out.Path)
	return err
}

// logout revokes the token server side, then forgets the session whatever the backend said.
func (cli *commandLine) logout(ctx context.Context) error {
	if cli.session.Current() == nil {
		fmt.Fprintln(cli.out, "not logged in")
		return nil
	}
	if err := cli.api.Logout(ctx); err != nil && !errors.Is(err, apiclient.ErrUnauthorized) {
		cli.logger.Warn("revoking session token", err)
	}
	if err := cli.session.Logout(ctx); err != nil {
		return err
	}
	fmt.Fprintln(cli.out, "logged out")
	return nil
}

func (cli *commandLine) whoami(ctx context.Context, args []string) error {
	fs := cli.newFlagSet("whoami")
	remote := fs.Bool("remote", false, "Check the session with the API.")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *remote && cli.session.Current() != nil {
		usr, err := cli.api.Me(ctx)
		if err != nil {
			if errors.Is(err, apiclient.ErrUnauthorized) {
				fmt.Fprintln(cli.out, "session expired, please log in again")
				return nil
			}
			return err
		}
		fmt.Fprintf(cli.out, "%s <%s> (%s), last login %s\n", usr.Name, usr.Email, usr.Role.Name(), usr.LastLogin.Time.Format(time.RFC3339))
		return nil
	}

	p := cli.session.Current()
	if p == nil {
		fmt.Fprintln(cli.out, "not logged in")
		return nil
	}
	fmt.Fprintf(cli.out, "%s <%s> (%s)\n", p.Name, p.Email, p.Role.Name())
	return nil
}

func (cli *commandLine) routes() error {
	p := cli.session.Current()
	for _, r := range cli.router.Routes() {
		who := "everyone"
		if !r.Public {
			who = "any user"
			if r.Requirement.AllowedRoles != nil {
				who = roleNames(r.Requirement.AllowedRoles)
			}
		}
		mark := " "
		if cli.router.Allowed(p, &r) {
			mark = "*"
		}
		fmt.Fprintf(cli.out, "%s %-22s %-15s %s\n", mark, r.Path, r.Title, who)
	}
	return nil
}

func (cli *commandLine) lookupKind(args []string) (content.Kind, []string, error) {
	if len(args) == 0 {
		cli.printUsage()
		return content.Kind{}, nil, errHelp
	}
	kind, ok := content.Lookup(args[0])
	if !ok {
		return content.Kind{}, nil, fmt.Errorf("unknown kind %q", args[0])
	}
	return kind, args[1:], nil
}

func (cli *commandLine) list(ctx context.Context, args []string) error {
	kind, rest, err := cli.lookupKind(args)
	if err != nil {
		return err
	}
	if kind.Singleton {
		return cli.show(ctx, args[:1])
	}

	fs := cli.newFlagSet("list")
	search := fs.String("search", "", "Text to look for in titles and bodies.")
	ordering := fs.String("ordering", "-published_at", "Comma separated fields, - for descending.")
	limit := fs.Int("limit", 20, "Maximum number of items.")
	offset := fs.Int("offset", 0, "Number of items to skip.")
	if err = fs.Parse(rest); err != nil {
		return err
	}

	items, err := cli.api.List(ctx, kind.Name, apiclient.Query{Search: *search, Ordering: *ordering, Limit: *limit, Offset: *offset})
	if err != nil {
		return err
	}
	return printItems(cli.out, items)
}

func (cli *commandLine) show(ctx context.Context, args []string) error {
	kind, rest, err := cli.lookupKind(args)
	if err != nil {
		return err
	}
	if kind.Singleton {
		return views{api: cli.api}.showSingleton(ctx, cli.out, kind)
	}
	if len(rest) != 1 {
		cli.printUsage()
		return errHelp
	}
	id, err := parseID(rest[0])
	if err != nil {
		return err
	}
	item, err := cli.api.Get(ctx, kind.Name, id)
	if err != nil {
		return err
	}
	return printItem(cli.out, item)
}

// attrFlags collects repeated -attr NAME=VALUE flags.
type attrFlags content.Attrs

func (a attrFlags) String() string { return fmt.Sprint(map[string]string(a)) }

func (a attrFlags) Set(s string) error {
	name, value, ok := strings.Cut(s, "=")
	if !ok || strings.TrimSpace(name) == "" {
		return fmt.Errorf("want NAME=VALUE, got %q", s)
	}
	a[strings.TrimSpace(name)] = value
	return nil
}

func (cli *commandLine) create(ctx context.Context, args []string) error {
	kind, rest, err := cli.lookupKind(args)
	if err != nil {
		return err
	}

	fs := cli.newFlagSet("create")
	title := fs.String("title", "", "The item title.")
	body := fs.String("body", "", "The item text.")
	imagePath := fs.String("image", "", "An image file to upload.")
	published := fs.String("published", "", "Publication time, RFC3339. Defaults to now.")
	attrs := attrFlags{}
	fs.Var(attrs, "attr", "An attribute, NAME=VALUE. Repeatable.")
	if err = fs.Parse(rest); err != nil {
		return err
	}

	in := content.ItemInput{Title: *title, Body: *body, Attrs: content.Attrs(attrs)}
	if *published != "" {
		t, err := time.Parse(time.RFC3339, *published)
		if err != nil {
			return fmt.Errorf("-published: %w", err)
		}
		in.PublishedAt = &t
	}

	var img *apiclient.Image
	if *imagePath != "" {
		f, err := os.Open(*imagePath)
		if err != nil {
			return err
		}
		defer f.Close()
		img = &apiclient.Image{Filename: filepath.Base(f.Name()), Content: f}
	}

	var item content.Item
	if kind.Singleton {
		item, err = cli.api.PutSingleton(ctx, kind.Name, in, img)
	} else {
		item, err = cli.api.Create(ctx, kind.Name, in, img)
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "saved %s #%d\n", kind.Name, item.ID)
	return printItem(cli.out, item)
}

func (cli *commandLine) delete(ctx context.Context, args []string) error {
	kind, rest, err := cli.lookupKind(args)
	if err != nil {
		return err
	}
	if kind.Singleton {
		err = cli.api.DeleteSingleton(ctx, kind.Name)
	} else {
		if len(rest) != 1 {
			cli.printUsage()
			return errHelp
		}
		id, perr := parseID(rest[0])
		if perr != nil {
			return perr
		}
		err = cli.api.Delete(ctx, kind.Name, id)
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "deleted %s\n", strings.Join(args, " "))
	return nil
}

func (cli *commandLine) sidebar(ctx context.Context, args []string) error {
	var err error
	switch {
	case len(args) == 0:
	case args[0] == "toggle":
		_, err = cli.layout.ToggleSidebar(ctx)
	case args[0] == "collapse":
		err = cli.layout.SetCollapsed(ctx, true)
	case args[0] == "expand":
		err = cli.layout.SetCollapsed(ctx, false)
	default:
		cli.printUsage()
		return errHelp
	}
	if err != nil {
		return err
	}

	if cli.layout.Collapsed() {
		fmt.Fprintln(cli.out, "sidebar: collapsed")
		return nil
	}
	fmt.Fprintln(cli.out, "sidebar: expanded")
	for _, item := range cli.layout.Sidebar() {
		fmt.Fprintf(cli.out, "  %-22s %s\n", item.Path, item.Title)
	}
	return nil
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", s)
	}
	return id, nil
}

// describeError turns API errors into what the user should do about them.
func describeError(err error) string {
	var apiErr *apiclient.Error
	if !errors.As(err, &apiErr) {
		return err.Error()
	}
	switch apiErr.Kind {
	case apiclient.KindUnauthorized:
		return "session expired, please log in again"
	case apiclient.KindForbidden:
		return "you are not allowed to do this"
	case apiclient.KindNetwork:
		return "cannot reach the server, try again"
	case apiclient.KindServer:
		return "the server failed, try again later"
	}
	return apiErr.Error()
}

func roleNames(roles []auth.Role) string {
	names := make([]string, len(roles))
	for i, r := range roles {
		names[i] = r.Name()
	}
	return strings.Join(names, ", ")
}
