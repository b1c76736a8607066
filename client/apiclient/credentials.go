package apiclient

// Credentials is what a request is authenticated with: Anonymous or Bearer.
type Credentials interface {
	authHeader() (string, bool)
}

// Anonymous requests carry no Authorization header.
type Anonymous struct{}

// Bearer requests carry "Authorization: Bearer <Token>".
type Bearer struct {
	Token string
}

func (Anonymous) authHeader() (string, bool) { return "", false }

func (b Bearer) authHeader() (string, bool) { return "Bearer " + b.Token, true }
