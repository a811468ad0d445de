// rotation.go: Retention enforcement for the sink directory
//
// Copyright (c) 2025 AGILira
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package mnemosyne

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// directoryEntry is one file's view of the directory during a
// retention pass. Entries are recomputed from a fresh listing on
// every pass and discarded afterwards; nothing is cached between
// passes, so the directory listing stays the sole source of truth.
type directoryEntry struct {
	name string
	size int64
	age  time.Duration
}

// hasRetentionLimits reports whether any retention bound is
// configured. Without limits a pass is a no-op and must not touch the
// filesystem.
func (s *Sink) hasRetentionLimits() bool {
	return s.maxTotalSize > 0 || s.maxFiles > 0 || s.maxAge > 0
}

// maybeEnforceRetention is the post-write trigger: a probability gate
// in front of the retention pass.
//
// Design rationale: scanning and stat-ing every file in the directory
// on every write is O(directory size). Gating the pass behind a
// tunable probability amortizes that cost across writes. The bounds
// become eventually enforced rather than instantaneously enforced,
// which is acceptable because they are soft guardrails, not hard
// quotas.
func (s *Sink) maybeEnforceRetention() {
	if !s.hasRetentionLimits() {
		return
	}
	if s.randFloat() >= s.rotateProbability {
		return
	}
	s.enforceRetention()
}

// enforceRetention runs one retention pass: list the directory, order
// entries newest first, then apply the configured bounds in the fixed
// order max-files, max-age, max-size. Each bound is evaluated against
// the entry list surviving the previous step, so the order decides
// which files remain when several bounds are violated at once.
//
// Deletions are best-effort: a file that cannot be removed is
// reported through ErrorCallback and the pass continues.
func (s *Sink) enforceRetention() {
	entries, err := s.scanDirectory()
	if err != nil {
		s.reportError("retention_scan", err)
		return
	}
	s.retentionPasses.Add(1)

	// Index 0 is the newest entry (smallest age); retention always
	// trims from the tail, the oldest end.
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].age < entries[j].age
	})

	// Max files: keep the maxFiles newest, delete the rest.
	if s.maxFiles > 0 && len(entries) > s.maxFiles {
		s.removeEntries(entries[s.maxFiles:])
		entries = entries[:s.maxFiles]
	}

	// Max age: entries older than the bound form a suffix of the
	// sorted list.
	if s.maxAge > 0 {
		cut := len(entries)
		for cut > 0 && entries[cut-1].age > s.maxAge {
			cut--
		}
		s.removeEntries(entries[cut:])
		entries = entries[:cut]
	}

	// Max size: accumulate newest to oldest; the first entry that
	// takes the running total over the bound goes, along with
	// everything older than it.
	if s.maxTotalSize > 0 {
		var total int64
		cut := len(entries)
		for i, e := range entries {
			total += e.size
			if total > s.maxTotalSize {
				cut = i
				break
			}
		}
		s.removeEntries(entries[cut:])
	}
}

// scanDirectory builds a fresh entry list for the sink directory.
// Only regular files participate in retention; subdirectories and
// special files are left alone. Files that vanish between the listing
// and the stat are skipped.
func (s *Sink) scanDirectory() ([]directoryEntry, error) {
	listing, err := os.ReadDir(s.dirname)
	if err != nil {
		return nil, fmt.Errorf("failed to read directory %q: %w", s.dirname, err)
	}

	now := s.now()
	entries := make([]directoryEntry, 0, len(listing))
	for _, item := range listing {
		if !item.Type().IsRegular() {
			continue
		}
		info, err := item.Info()
		if err != nil {
			continue // Vanished mid-scan
		}
		age := now.Sub(fileCtime(info))
		if age < 0 {
			age = 0
		}
		entries = append(entries, directoryEntry{
			name: item.Name(),
			size: info.Size(),
			age:  age,
		})
	}
	return entries, nil
}

// removeEntries deletes the given entries from the sink directory.
// Failures do not abort the remaining deletions: a file already gone
// counts as removed, anything else is reported and skipped.
func (s *Sink) removeEntries(entries []directoryEntry) {
	for _, e := range entries {
		path := filepath.Join(s.dirname, e.name)
		if err := os.Remove(path); err != nil {
			if os.IsNotExist(err) {
				continue
			}
			s.reportError("retention_delete",
				fmt.Errorf("failed to remove %s (age: %v): %w", path, e.age, err))
			continue
		}
		s.filesDeleted.Add(1)
	}
}
