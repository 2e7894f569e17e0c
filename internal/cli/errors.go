package cli

import (
	"errors"
	"fmt"

	"shelf-cli/internal/backend"
)

var errNotSignedIn = errors.New("not signed in; run `shelf login`")

type notFoundError struct {
	kind string
	id   string
}

func (e notFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.kind, e.id)
}

func errNotFound(kind, id string) error {
	return notFoundError{kind: kind, id: id}
}

// describe maps backend failures to messages a shell user can act on.
func describe(op, name string, err error) error {
	switch {
	case errors.Is(err, backend.ErrNotFound):
		return errNotFound("document", name)
	case errors.Is(err, backend.ErrUnauthorized):
		return fmt.Errorf("%s: session rejected by the server; run `shelf login`", op)
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}
