// clock.go: Time source abstraction
//
// Copyright (c) 2025 AGILira
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package eunoe

import (
	"time"

	"github.com/agilira/go-timecache"
)

// Clock supplies the current time to a Backend.
// Rotation deadlines, rotated-file names and file ages are all measured
// against it.
type Clock interface {
	Now() time.Time
}

// cachedClock reads a millisecond-resolution timecache instead of calling
// time.Now on every write
type cachedClock struct {
	tc *timecache.TimeCache
}

func newCachedClock() *cachedClock {
	return &cachedClock{tc: timecache.NewWithResolution(time.Millisecond)}
}

func (c *cachedClock) Now() time.Time {
	return c.tc.CachedTime()
}

func (c *cachedClock) stop() {
	c.tc.Stop()
}
