// path.go: Default log path discovery
//
// Copyright (c) 2025 AGILira
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// DefaultPath returns <dir of executable>/../log/<executable name>.log,
// with any extension of the executable name dropped.
//
// For /opt/app/bin/server it returns /opt/app/log/server.log.
func DefaultPath() (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("config: cannot locate executable: %w", err)
	}
	if resolved, err := filepath.EvalSymlinks(exe); err == nil {
		exe = resolved
	}
	return defaultPathFor(exe), nil
}

func defaultPathFor(exe string) string {
	base := filepath.Base(exe)
	name := strings.TrimSuffix(base, filepath.Ext(base))
	return filepath.Join(filepath.Dir(exe), "..", "log", name+".log")
}
