// config.go: Configuration parsing utilities
//
// Copyright (c) 2025 AGILira
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package mnemosyne

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"
)

// sizeUnits maps size suffixes to their byte multipliers. Two-letter
// forms must precede their single-letter aliases so "KB" is not
// matched as a bare "B"-less "K" with a stray byte left over.
var sizeUnits = []struct {
	suffix string
	bytes  int64
}{
	{"KB", 1 << 10},
	{"MB", 1 << 20},
	{"GB", 1 << 30},
	{"TB", 1 << 40},
	{"K", 1 << 10},
	{"M", 1 << 20},
	{"G", 1 << 30},
	{"T", 1 << 40},
}

// ParseSize converts a human-readable size like "100MB" or "1gb" into
// a byte count. Suffixes are case-insensitive; single-letter aliases
// (K, M, G, T) are accepted, and a bare number means bytes.
func ParseSize(s string) (int64, error) {
	if s == "" {
		return 0, fmt.Errorf("empty size string")
	}

	// Bare numbers are already bytes
	if val, err := strconv.ParseInt(s, 10, 64); err == nil {
		return val, nil
	}

	upper := strings.ToUpper(s)
	for _, unit := range sizeUnits {
		if !strings.HasSuffix(upper, unit.suffix) {
			continue
		}
		val, err := strconv.ParseInt(upper[:len(upper)-len(unit.suffix)], 10, 64)
		if err != nil {
			return 0, fmt.Errorf("malformed size %q: %v", s, err)
		}
		total := val * unit.bytes
		if total < 0 {
			return 0, fmt.Errorf("size %q overflows int64", s)
		}
		return total, nil
	}

	return 0, fmt.Errorf("unrecognized size suffix in %q (want KB/K, MB/M, GB/G or TB/T)", s)
}

// durationUnits extends the Go duration grammar with coarser suffixes
// that retention windows are usually expressed in.
var durationUnits = []struct {
	suffix string
	length time.Duration
}{
	{"d", 24 * time.Hour},
	{"w", 7 * 24 * time.Hour},
	{"y", 365 * 24 * time.Hour},
}

// ParseDuration converts strings like "24h" or "7d" into a
// time.Duration. Anything time.ParseDuration accepts is accepted
// unchanged; on top of that, d (day), w (week) and y (365-day year)
// suffixes are understood.
func ParseDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, fmt.Errorf("empty duration string")
	}

	if d, err := time.ParseDuration(s); err == nil {
		return d, nil
	}

	lower := strings.ToLower(s)
	for _, unit := range durationUnits {
		if !strings.HasSuffix(lower, unit.suffix) {
			continue
		}
		val, err := strconv.ParseInt(lower[:len(lower)-len(unit.suffix)], 10, 64)
		if err != nil {
			return 0, fmt.Errorf("malformed duration %q: %v", s, err)
		}
		return time.Duration(val) * unit.length, nil
	}

	return 0, fmt.Errorf("unrecognized duration suffix in %q (want a Go duration, d, w or y)", s)
}

// SanitizeFilename replaces characters that cannot appear in a
// filename. Resolved names, including those from a FilenameFunc, pass
// through here before the collision scan: path separators are
// replaced so a derived name cannot escape the sink directory, and
// NUL bytes are replaced because no filesystem accepts them.
func SanitizeFilename(filename string) string {
	filename = strings.ReplaceAll(filename, string(os.PathSeparator), "_")
	filename = strings.ReplaceAll(filename, "/", "_")
	return strings.ReplaceAll(filename, "\x00", "_")
}

// ValidatePathLength rejects directory paths that exceed the host
// platform's path limit, measured against the absolute form so a
// short relative path cannot hide a long working directory.
func ValidatePathLength(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("invalid path: %v", err)
	}

	// MAX_PATH on Windows, PATH_MAX elsewhere (Linux's 4096 is the
	// common ceiling)
	limit := 4096
	if runtime.GOOS == "windows" {
		limit = 260
	}
	if len(abs) > limit {
		return fmt.Errorf("path length %d exceeds the %d-character limit on %s", len(abs), limit, runtime.GOOS)
	}

	return nil
}

// GetDefaultFileMode returns the default mode for message files.
func GetDefaultFileMode() os.FileMode {
	// On Windows, Go handles ACL conversion; 0644 translates correctly
	return 0644
}

// RetryFileOperation runs a filesystem operation up to retryCount
// times, sleeping retryDelay between attempts. Antivirus scanners,
// indexers and network filesystems can fail an open or write that
// succeeds a moment later; a few short retries absorb that without
// masking persistent errors. Non-positive arguments fall back to 3
// attempts and 10ms.
func RetryFileOperation(operation func() error, retryCount int, retryDelay time.Duration) error {
	if retryCount <= 0 {
		retryCount = 3
	}
	if retryDelay <= 0 {
		retryDelay = 10 * time.Millisecond
	}

	var lastErr error
	for attempt := 0; attempt < retryCount; attempt++ {
		if lastErr = operation(); lastErr == nil {
			return nil
		}
		// No sleep after the final attempt
		if attempt < retryCount-1 {
			time.Sleep(retryDelay)
		}
	}

	return fmt.Errorf("giving up after %d attempts: %w", retryCount, lastErr)
}
