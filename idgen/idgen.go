// Package idgen produces the identifiers used for analysis runs and their
// request-scoped working directories.
//
// IDs are UUIDv7 strings: time-sortable, so a directory listing of the
// input root or a history query ordered by id follows arrival order.
package idgen

import (
	"fmt"

	"github.com/google/uuid"
)

// Generator produces unique string identifiers.
type Generator func() string

// UUIDv7 returns a Generator that produces RFC 9562 UUID v7 strings.
func UUIDv7() Generator {
	return func() string {
		return uuid.Must(uuid.NewV7()).String()
	}
}

// Prefixed wraps a Generator and prepends a fixed prefix to every ID.
func Prefixed(prefix string, gen Generator) Generator {
	return func() string {
		return prefix + gen()
	}
}

// Default is the generator used when a component is not given one.
var Default Generator = UUIDv7()

// New produces an ID using the Default generator.
func New() string {
	return Default()
}

// Parse validates a UUID string and returns its canonical form.
// Run ids arrive from URLs and MCP arguments and are used as directory
// names, so anything that is not a UUID is rejected.
func Parse(s string) (string, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return "", fmt.Errorf("idgen: invalid id %q: %w", s, err)
	}
	return u.String(), nil
}
