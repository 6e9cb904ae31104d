package cmd

import (
	"context"

	"github.com/dukex/provtrack/pkg/lease"
)

// NewLocker returns a Redis locker when redisURL is set and an in-process one
// otherwise. The returned close function is never nil.
func NewLocker(ctx context.Context, redisURL string) (lease.Locker, func() error, error) {
	if redisURL == "" {
		return lease.NewMemory(), func() error { return nil }, nil
	}

	locker, err := lease.NewRedisFromURL(ctx, redisURL)
	if err != nil {
		return nil, nil, err
	}

	return locker, locker.Close, nil
}
