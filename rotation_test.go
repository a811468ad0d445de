// rotation_test.go: Retention enforcement tests
//
// Copyright (c) 2025 AGILira
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package mnemosyne

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// writeAged creates a file in the sink directory and waits long
// enough afterwards that the next file gets a strictly newer ctime.
func writeAged(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0644); err != nil {
		t.Fatalf("WriteFile(%q) failed: %v", name, err)
	}
	time.Sleep(20 * time.Millisecond)
}

// sequenceNamer returns a FilenameFunc producing msg-0, msg-1, ...
func sequenceNamer() FilenameFunc {
	n := 0
	return func(msg string, level Level, attrs map[string]string) string {
		name := fmt.Sprintf("msg-%d", n)
		n++
		return name
	}
}

func TestRetentionByCount(t *testing.T) {
	sink := newTestSink(t, &SinkConfig{
		Dirname:  filepath.Join(t.TempDir(), "count"),
		MaxFiles: 2,
	})

	writeAged(t, sink.Dirname(), "oldest", "a")
	writeAged(t, sink.Dirname(), "middle", "b")
	writeAged(t, sink.Dirname(), "newest", "c")

	sink.enforceRetention()

	names := listDir(t, sink.Dirname())
	if len(names) != 2 {
		t.Fatalf("Expected 2 surviving files, got %v", names)
	}
	for _, want := range []string{"middle", "newest"} {
		if _, err := os.Stat(filepath.Join(sink.Dirname(), want)); err != nil {
			t.Errorf("Expected %q to survive: %v", want, err)
		}
	}
	if _, err := os.Stat(filepath.Join(sink.Dirname(), "oldest")); !os.IsNotExist(err) {
		t.Error("Expected oldest file to be deleted")
	}
}

func TestRetentionByAge(t *testing.T) {
	sink := newTestSink(t, &SinkConfig{
		Dirname: filepath.Join(t.TempDir(), "age"),
		MaxAge:  75 * time.Millisecond,
	})

	writeAged(t, sink.Dirname(), "stale", "a")
	time.Sleep(130 * time.Millisecond)
	writeAged(t, sink.Dirname(), "fresh", "b")

	sink.enforceRetention()

	if _, err := os.Stat(filepath.Join(sink.Dirname(), "stale")); !os.IsNotExist(err) {
		t.Error("Expected stale file to be deleted")
	}
	if _, err := os.Stat(filepath.Join(sink.Dirname(), "fresh")); err != nil {
		t.Errorf("Expected fresh file to survive: %v", err)
	}
}

func TestRetentionBySize(t *testing.T) {
	sink := newTestSink(t, &SinkConfig{
		Dirname:      filepath.Join(t.TempDir(), "size"),
		MaxTotalSize: 250,
	})

	payload := strings.Repeat("x", 100)
	writeAged(t, sink.Dirname(), "oldest", payload)
	writeAged(t, sink.Dirname(), "middle", payload)
	writeAged(t, sink.Dirname(), "newest", payload)

	sink.enforceRetention()

	// Newest two fit in 250 bytes; the oldest takes the total to 300.
	names := listDir(t, sink.Dirname())
	if len(names) != 2 {
		t.Fatalf("Expected 2 surviving files, got %v", names)
	}
	if _, err := os.Stat(filepath.Join(sink.Dirname(), "oldest")); !os.IsNotExist(err) {
		t.Error("Expected oldest file to be deleted")
	}

	var total int64
	for _, name := range names {
		info, err := os.Stat(filepath.Join(sink.Dirname(), name))
		if err != nil {
			t.Fatalf("Stat failed: %v", err)
		}
		total += info.Size()
	}
	if total > 250 {
		t.Errorf("Remaining total %d exceeds the bound", total)
	}
}

func TestRetentionLimitOrder(t *testing.T) {
	// With both bounds violated, max-files trims first and max-size is
	// then evaluated against the survivors.
	sink := newTestSink(t, &SinkConfig{
		Dirname:      filepath.Join(t.TempDir(), "order"),
		MaxFiles:     3,
		MaxTotalSize: 150,
	})

	payload := strings.Repeat("x", 100)
	for _, name := range []string{"f0", "f1", "f2", "f3"} {
		writeAged(t, sink.Dirname(), name, payload)
	}

	sink.enforceRetention()

	names := listDir(t, sink.Dirname())
	if len(names) != 1 || names[0] != "f3" {
		t.Errorf("Expected only the newest file f3 to survive, got %v", names)
	}
}

func TestRetentionNoLimitsIsNoOp(t *testing.T) {
	sink := newTestSink(t, &SinkConfig{
		Dirname:           filepath.Join(t.TempDir(), "nolimits"),
		RotateProbability: Probability(1),
	})

	for i := 0; i < 5; i++ {
		if err := sink.Log(fmt.Sprintf("m%d", i), LevelInfo, nil); err != nil {
			t.Fatalf("Log failed: %v", err)
		}
	}
	if err := sink.Rotate(); err != nil {
		t.Fatalf("Rotate failed: %v", err)
	}

	if got := len(listDir(t, sink.Dirname())); got != 5 {
		t.Errorf("Expected all 5 files to remain, got %d", got)
	}
	if passes := sink.Stats().RetentionPasses; passes != 0 {
		t.Errorf("Expected 0 retention passes without limits, got %d", passes)
	}
}

func TestRotationProbability(t *testing.T) {
	t.Run("ZeroNeverTriggers", func(t *testing.T) {
		sink := newTestSink(t, &SinkConfig{
			Dirname:           filepath.Join(t.TempDir(), "p0"),
			MaxFiles:          1,
			RotateProbability: Probability(0),
			FilenameFunc:      sequenceNamer(),
		})

		for i := 0; i < 20; i++ {
			if err := sink.Log("m", LevelInfo, nil); err != nil {
				t.Fatalf("Log failed: %v", err)
			}
		}

		if got := len(listDir(t, sink.Dirname())); got != 20 {
			t.Errorf("Expected all 20 files with probability 0, got %d", got)
		}
		if passes := sink.Stats().RetentionPasses; passes != 0 {
			t.Errorf("Expected 0 retention passes, got %d", passes)
		}
	})

	t.Run("OneAlwaysTriggers", func(t *testing.T) {
		sink := newTestSink(t, &SinkConfig{
			Dirname:           filepath.Join(t.TempDir(), "p1"),
			MaxFiles:          2,
			RotateProbability: Probability(1),
			FilenameFunc:      sequenceNamer(),
		})

		const writes = 5
		for i := 0; i < writes; i++ {
			if err := sink.Log("m", LevelInfo, nil); err != nil {
				t.Fatalf("Log failed: %v", err)
			}
			time.Sleep(15 * time.Millisecond)
		}

		if got := len(listDir(t, sink.Dirname())); got > 2 {
			t.Errorf("Expected at most 2 files with probability 1, got %d", got)
		}
		if passes := sink.Stats().RetentionPasses; passes != writes {
			t.Errorf("Expected %d retention passes, got %d", writes, passes)
		}
	})
}

func TestManualRotate(t *testing.T) {
	sink := newTestSink(t, &SinkConfig{
		Dirname:           filepath.Join(t.TempDir(), "manual"),
		MaxFiles:          1,
		RotateProbability: Probability(0),
	})

	writeAged(t, sink.Dirname(), "first", "a")
	writeAged(t, sink.Dirname(), "second", "b")
	writeAged(t, sink.Dirname(), "third", "c")

	if err := sink.Rotate(); err != nil {
		t.Fatalf("Rotate failed: %v", err)
	}

	names := listDir(t, sink.Dirname())
	if len(names) != 1 || names[0] != "third" {
		t.Errorf("Expected only the newest file to survive, got %v", names)
	}
	if deleted := sink.Stats().FilesDeleted; deleted != 2 {
		t.Errorf("Expected 2 deletions recorded, got %d", deleted)
	}
}

func TestRetentionSkipsSubdirectories(t *testing.T) {
	sink := newTestSink(t, &SinkConfig{
		Dirname:  filepath.Join(t.TempDir(), "subdirs"),
		MaxFiles: 1,
	})

	if err := os.Mkdir(filepath.Join(sink.Dirname(), "nested"), 0755); err != nil {
		t.Fatalf("Mkdir failed: %v", err)
	}
	writeAged(t, sink.Dirname(), "older", "a")
	writeAged(t, sink.Dirname(), "newer", "b")

	sink.enforceRetention()

	if _, err := os.Stat(filepath.Join(sink.Dirname(), "nested")); err != nil {
		t.Errorf("Expected subdirectory untouched by retention: %v", err)
	}
	names := listDir(t, sink.Dirname())
	if len(names) != 1 || names[0] != "newer" {
		t.Errorf("Expected only the newest regular file, got %v", names)
	}
}

func TestRetentionDeletionFailureReported(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("directory permissions do not bind root")
	}

	var failedOps []string
	sink := newTestSink(t, &SinkConfig{
		Dirname:  filepath.Join(t.TempDir(), "readonly"),
		MaxFiles: 1,
		ErrorCallback: func(operation string, err error) {
			failedOps = append(failedOps, operation)
		},
	})

	writeAged(t, sink.Dirname(), "older", "a")
	writeAged(t, sink.Dirname(), "newer", "b")

	if err := os.Chmod(sink.Dirname(), 0555); err != nil {
		t.Fatalf("Chmod failed: %v", err)
	}
	defer os.Chmod(sink.Dirname(), 0755)

	sink.enforceRetention()

	if len(failedOps) == 0 {
		t.Fatal("Expected deletion failure to reach ErrorCallback")
	}
	for _, op := range failedOps {
		if op != "retention_delete" {
			t.Errorf("Unexpected operation %q reported", op)
		}
	}
	// The write path is unaffected by retention failures
	if _, err := os.Stat(filepath.Join(sink.Dirname(), "newer")); err != nil {
		t.Errorf("Expected surviving file intact: %v", err)
	}
}
