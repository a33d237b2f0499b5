package storage

import (
	"context"
	"errors"
	"fmt"
	"regexp"
)

// ErrNotFound is returned by Get when the key has never been set.
var ErrNotFound = errors.New("record not found")

// Store is the keyed-record persistence boundary shared by files, settings, users and clones.
// Values are JSON encoded; List decodes into a pointer to a slice.
type Store interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}) error
	Append(ctx context.Context, collection string, item interface{}) error
	List(ctx context.Context, collection string, dest interface{}) error
	Replace(ctx context.Context, collection string, items interface{}) error
}

var namePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_.-]{0,63}$`)

func validateName(name string) error {
	if !namePattern.MatchString(name) {
		return fmt.Errorf("invalid record name %q", name)
	}
	return nil
}
