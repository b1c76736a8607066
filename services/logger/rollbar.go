// Package logsvc implements core.Logger on top of Rollbar, echoing every entry to a *log.Logger.
package logsvc

import (
	"log"

	"github.com/rollbar/rollbar-go"
	"github.com/rollbar/rollbar-go/errors"

	"github.com/trezcool/schoolsite/core"
	"github.com/trezcool/schoolsite/core/auth"
	"github.com/trezcool/schoolsite/core/user"
)

type RollbarLogger struct {
	std *log.Logger
}

var _ core.Logger = (*RollbarLogger)(nil)

// NewRollbarLogger configures Rollbar from conf. Reporting is disabled in debug mode or without a token.
func NewRollbarLogger(std *log.Logger, conf *core.Config) *RollbarLogger {
	rollbar.SetToken(conf.RollbarToken)
	rollbar.SetEnvironment(conf.Env)
	rollbar.SetServerHost(conf.Server.Host)
	rollbar.SetCodeVersion(conf.Build)
	rollbar.SetStackTracer(errors.StackTracer)

	l := &RollbarLogger{std: std}
	l.Enable(!conf.Debug && conf.RollbarToken != "")
	return l
}

func (l RollbarLogger) Enable(enabled bool) {
	rollbar.SetEnabled(enabled)
}

// Close waits for the queued reports to be sent.
func (l RollbarLogger) Close() {
	rollbar.Close()
}

type person struct {
	id, name, email string
}

func personOf(arg interface{}) (person, bool) {
	switch v := arg.(type) {
	case user.User:
		return person{v.ID, v.Name, v.Email}, true
	case *user.User:
		if v != nil {
			return person{v.ID, v.Name, v.Email}, true
		}
	case *auth.Principal:
		if v != nil {
			return person{v.ID, v.Name, v.Email}, true
		}
	case auth.Principal:
		return person{v.ID, v.Name, v.Email}, true
	}
	return person{}, false
}

// expected fmt: msg | error, map[string]interface{}, user.User or auth.Principal
func (l RollbarLogger) prepare(msg string, args []interface{}) ([]interface{}, []interface{}) {
	var usrSet bool
	rbArgs := make([]interface{}, 0, len(args)+1)
	rbArgs = append(rbArgs, msg)
	printed := make([]interface{}, 0, len(args))
	for _, arg := range args {
		if p, ok := personOf(arg); ok {
			if !usrSet { // only set one person
				rollbar.SetPerson(p.id, p.name, p.email)
				usrSet = true
			}
			printed = append(printed, "user: "+p.email)
			continue
		}
		rbArgs = append(rbArgs, arg)
		printed = append(printed, arg)
	}
	if !usrSet {
		rollbar.ClearPerson()
	}
	return rbArgs, printed
}

func (l RollbarLogger) print(msg string, args []interface{}) {
	l.std.Println(msg)
	for _, arg := range args {
		l.std.Printf("%+v\n", arg)
	}
}

func (l RollbarLogger) Debug(msg string, args ...interface{}) {
	rbArgs, printed := l.prepare(msg, args)
	rollbar.Debug(rbArgs...)
	l.print(msg, printed)
}

func (l RollbarLogger) Info(msg string, args ...interface{}) {
	rbArgs, printed := l.prepare(msg, args)
	rollbar.Info(rbArgs...)
	l.print(msg, printed)
}

func (l RollbarLogger) Warn(msg string, args ...interface{}) {
	rbArgs, printed := l.prepare(msg, args)
	rollbar.Warning(rbArgs...)
	l.print(msg, printed)
}

func (l RollbarLogger) Error(msg string, args ...interface{}) {
	rbArgs, printed := l.prepare(msg, args)
	rollbar.Error(rbArgs...)
	l.print(msg, printed)
}

func (l RollbarLogger) Fatal(msg string, args ...interface{}) {
	rbArgs, printed := l.prepare(msg, args)
	rollbar.Critical(rbArgs...)
	l.print(msg, printed)
	rollbar.Close()
	l.std.Fatal(msg)
}
