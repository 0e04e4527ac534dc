// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package modelcache

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/bureau-foundation/modelcache/lib/clock"
	"github.com/bureau-foundation/modelcache/lib/modelid"
)

// BuildLock is an exclusive, cross-process lock on one model
// directory. Release it with Unlock.
type BuildLock struct {
	file *os.File
	id   modelid.Identity
}

// LockBuild acquires the build lock for id, creating the model
// directory if needed. While the lock is held by another process,
// LockBuild retries every pollInterval using clk until ctx is done.
func (c *Cache) LockBuild(ctx context.Context, id modelid.Identity, clk clock.Clock, pollInterval time.Duration) (*BuildLock, error) {
	directory, err := c.EnsureModelDirectory(id)
	if err != nil {
		return nil, err
	}
	path := filepath.Join(directory, buildLockFile)
	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening build lock for %s: %w", id, err)
	}

	for {
		acquired, err := tryLock(file)
		if err != nil {
			file.Close()
			return nil, fmt.Errorf("locking %s: %w", path, err)
		}
		if acquired {
			return &BuildLock{file: file, id: id}, nil
		}
		select {
		case <-ctx.Done():
			file.Close()
			return nil, fmt.Errorf("waiting for build lock on %s: %w", id, ctx.Err())
		case <-clk.After(pollInterval):
		}
	}
}

// Unlock releases the lock. Closing the descriptor releases the flock
// even if the explicit unlock fails.
func (l *BuildLock) Unlock() error {
	unlockErr := unlock(l.file)
	closeErr := l.file.Close()
	if unlockErr != nil {
		return fmt.Errorf("unlocking build lock for %s: %w", l.id, unlockErr)
	}
	if closeErr != nil {
		return fmt.Errorf("closing build lock for %s: %w", l.id, closeErr)
	}
	return nil
}
