package cache

import (
	"context"
	"errors"
	"time"
)

// noopStore is the always-miss implementation used when Redis is
// unreachable or caching is disabled by configuration.
type noopStore struct{}

// Disabled returns a Store for which every read misses and every
// write is a no-op.
func Disabled() Store { return noopStore{} }

func (noopStore) Get(context.Context, string, any) bool           { return false }
func (noopStore) Set(context.Context, string, any, time.Duration) {}
func (noopStore) Delete(context.Context, ...string)               {}
func (noopStore) DeleteByPrefix(context.Context, string)          {}
func (noopStore) Exists(context.Context, string) bool             { return false }
func (noopStore) Ping(context.Context) error                      { return errors.New("cache disabled") }
func (noopStore) Flush(context.Context)                           {}
