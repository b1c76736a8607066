package core

// Logger logs messages with optional args: errors, map[string]interface{} extras
// and the acting user (user.User or auth.Principal) which is reported as the person.
type Logger interface {
	Debug(msg string, args ...interface{})
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})
	Fatal(msg string, args ...interface{})
}
