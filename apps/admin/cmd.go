package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io"
	"sort"
	"strings"
	"syscall"

	"github.com/go-playground/validator/v10"
	"golang.org/x/term"

	"github.com/trezcool/schoolsite/core"
	"github.com/trezcool/schoolsite/core/user"
	"github.com/trezcool/schoolsite/storage/database"
)

var (
	readPasswordFunc = term.ReadPassword // mockable
	migrateFunc      = database.Migrate  // mockable

	errHelp = errors.New("help provided")
)

type commandLine struct {
	db     *sql.DB
	usrSvc *user.Service
	out    io.Writer
}

func (cli *commandLine) printUsage() {
	fmt.Fprintln(cli.out, "Usage:")
	fmt.Fprintln(cli.out, "  adduser -email EMAIL -name NAME [-role admin|guru|user] - create or update a user")
	fmt.Fprintln(cli.out, "  resetpassword -email EMAIL - reset user's password")
	fmt.Fprintln(cli.out, "  migrate COMMAND [ARGS...] - run a goose migration command (up, down, status, ...)")
}

func (cli *commandLine) newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(cli.out)
	return fs
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}
	ctx := context.Background()

	addUserCmd := cli.newFlagSet("adduser")
	addUserEmail := addUserCmd.String("email", "", "The user's email. The password will be prompted next.")
	addUserName := addUserCmd.String("name", "", "The user's full name.")
	addUserRole := addUserCmd.String("role", "admin", "The user's role.")

	resetPasswordCmd := cli.newFlagSet("resetpassword")
	resetPasswordEmail := resetPasswordCmd.String("email", "", "The user's email. The password will be prompted next.")

	switch args[1] {
	case "adduser":
		if err := addUserCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *addUserEmail == "" || *addUserName == "" {
			addUserCmd.Usage()
			return errHelp
		}
		pwd, err := cli.readPassword()
		if err != nil {
			return err
		}
		if pwd == "" {
			addUserCmd.Usage()
			return errHelp
		}
		return cli.addUser(ctx, *addUserName, *addUserEmail, *addUserRole, pwd)

	case "resetpassword":
		if err := resetPasswordCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *resetPasswordEmail == "" {
			resetPasswordCmd.Usage()
			return errHelp
		}
		pwd, err := cli.readPassword()
		if err != nil {
			return err
		}
		if pwd == "" {
			resetPasswordCmd.Usage()
			return errHelp
		}
		return cli.resetPassword(ctx, *resetPasswordEmail, pwd)

	case "migrate":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		return cli.migrate(args[2], args[3:]...)

	default:
		cli.printUsage()
		return errHelp
	}
}

func (cli *commandLine) readPassword() (string, error) {
	fmt.Fprint(cli.out, "Enter password:")
	pwd, err := readPasswordFunc(int(syscall.Stdin))
	fmt.Fprintln(cli.out)
	return string(pwd), err
}

// addUser creates the user, or updates the role, password and state of an existing one.
func (cli *commandLine) addUser(ctx context.Context, name, email, role, pwd string) error {
	usr, err := cli.usrSvc.GetByEmail(ctx, email)
	switch {
	case err == nil:
		upd := user.UpdateUser{Name: name, Role: role, Password: pwd, PasswordConfirm: pwd, IsActive: boolPtr(true)}
		if err = upd.Validate(ctx, usr, cli.usrSvc); err != nil {
			return err
		}
		usr, err = cli.usrSvc.Update(ctx, usr.ID, upd)
		if err != nil {
			return err
		}
		fmt.Fprintf(cli.out, "updated %s (%s)\n", usr.Email, usr.Role)
		return nil
	case !core.IsNotFound(err):
		return err
	}

	nu := user.NewUser{Name: name, Email: email, Role: role, Password: pwd, PasswordConfirm: pwd}
	if err = nu.Validate(ctx, cli.usrSvc); err != nil {
		return err
	}
	if usr, err = cli.usrSvc.Create(ctx, nu); err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "created %s (%s)\n", usr.Email, usr.Role)
	return nil
}

func (cli *commandLine) resetPassword(ctx context.Context, email, pwd string) error {
	usr, err := cli.usrSvc.GetByEmail(ctx, email)
	if err != nil {
		return err
	}
	upd := user.UpdateUser{Password: pwd, PasswordConfirm: pwd}
	if err = upd.Validate(ctx, usr, cli.usrSvc); err != nil {
		return err
	}
	_, err = cli.usrSvc.Update(ctx, usr.ID, upd)
	return err
}

func (cli *commandLine) migrate(command string, args ...string) error {
	if cli.db == nil {
		return errors.New("migrations need a database")
	}
	return migrateFunc(cli.db, command, args...)
}

func boolPtr(b bool) *bool { return &b }

// describe renders validation errors one field per line.
func describe(err error) string {
	fields := map[string]string{}
	var vErrs validator.ValidationErrors
	var vErr *core.ValidationError
	switch {
	case errors.As(err, &vErrs):
		fields = core.TranslateErrors(vErrs, core.Translator)
	case errors.As(err, &vErr) && len(vErr.Fields) > 0:
		for _, f := range vErr.Fields {
			fields[f.Field] = f.Error
		}
	default:
		return err.Error()
	}

	lines := make([]string, 0, len(fields))
	for fld, msg := range fields {
		lines = append(lines, fmt.Sprintf("  %s: %s", fld, msg))
	}
	sort.Strings(lines)
	return "invalid input:\n" + strings.Join(lines, "\n")
}
