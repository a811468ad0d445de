// mnemosyne.go: Public API - per-message directory log sink
//
// Copyright (c) 2025 AGILira
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package mnemosyne

import (
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/agilira/go-errors"
	"github.com/agilira/go-timecache"
)

// Level is the severity of a logged message. The sink does not filter
// by level itself; the dispatch framework in front of it does. The
// sink records its configured range and exposes ShouldHandle for
// frameworks that want the sink to own the decision.
type Level int

// Severity levels, lowest to highest.
const (
	LevelDebug Level = iota
	LevelInfo
	LevelNotice
	LevelWarning
	LevelError
	LevelCritical
)

// String returns the lowercase name of the level.
func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "debug"
	case LevelInfo:
		return "info"
	case LevelNotice:
		return "notice"
	case LevelWarning:
		return "warning"
	case LevelError:
		return "error"
	case LevelCritical:
		return "critical"
	default:
		return fmt.Sprintf("level(%d)", int(l))
	}
}

// FilenameFunc derives a filename from a message and its metadata.
// It fully replaces the filename pattern when configured. Returning
// an empty string fails the write with ErrCodeInvalidNamingFunc.
//
// The returned name is still subject to collision resolution: if a
// file with that name already exists in the directory, a numeric
// suffix (".1", ".2", ...) is appended until an unused name is found.
type FilenameFunc func(message string, level Level, attrs map[string]string) string

// DefaultFilenamePattern is the filename pattern used when neither
// FilenamePattern nor FilenameFunc is configured. It combines a
// 14-digit local timestamp with the process id, which keeps names
// practically unique across processes without collision-prone values.
const DefaultFilenamePattern = "%Y%m%d%H%M%S.%{pid}"

// DefaultRotateProbability is the chance that a retention pass runs
// after a write when RotateProbability is left unset.
const DefaultRotateProbability = 0.25

// Probability returns a pointer to p, for use as a SinkConfig
// RotateProbability literal. The pointer form distinguishes an
// explicit 0 (never enforce automatically) from an unset field.
func Probability(p float64) *float64 {
	return &p
}

// SinkConfig holds configuration options for creating a Sink.
// The configuration is immutable after construction; the Sink keeps
// its own validated copy.
type SinkConfig struct {
	// Name identifies the sink within a dispatch framework.
	// Required; the sink itself only passes it through.
	Name string `json:"name"`

	// MinLevel and MaxLevel bound the severity range this sink is
	// meant to handle. Filtering is the dispatch framework's job;
	// the sink stores the range and answers ShouldHandle.
	// The zero value of MaxLevel is LevelDebug, which is treated as
	// unset and promoted to LevelCritical; a ceiling of LevelDebug
	// alone is therefore not expressible, only the full range
	// [LevelDebug, LevelCritical].
	MinLevel Level `json:"min_level"`
	MaxLevel Level `json:"max_level"`

	// Dirname is the target directory. It is created at construction
	// if it does not exist. Required.
	Dirname string `json:"dirname"`

	// DirMode is the permission mode applied when the sink creates
	// the directory (default: 0755). The mode is applied with an
	// explicit chmod so the process umask cannot narrow it. An
	// existing directory is left untouched.
	DirMode os.FileMode `json:"dir_mode"`

	// FilenamePattern is a template expanded per message with local
	// time at the moment of the write. Recognized placeholders:
	//
	//	%Y  4-digit year      %y  2-digit year
	//	%m  2-digit month     %d  2-digit day
	//	%H  2-digit hour      %M  2-digit minute
	//	%S  2-digit second    %z  numeric UTC offset
	//	%Z  timezone name     %{pid} process id
	//	%%  literal percent
	//
	// An unrecognized placeholder is a fatal configuration error
	// naming the offending token. Defaults to DefaultFilenamePattern.
	FilenamePattern string `json:"filename_pattern"`

	// FilenameFunc overrides FilenamePattern when non-nil.
	FilenameFunc FilenameFunc `json:"-"`

	// MaxTotalSize is the cumulative size bound in bytes for the
	// directory. Zero means unlimited.
	// MaxTotalSizeStr is the preferred string form ("100MB", "1GB");
	// it takes precedence and may not be combined with MaxTotalSize.
	MaxTotalSize    int64  `json:"max_total_size"`
	MaxTotalSizeStr string `json:"max_total_size_str"`

	// MaxFiles is the file-count bound for the directory.
	// Zero means unlimited.
	MaxFiles int `json:"max_files"`

	// MaxAge is the age bound for files in the directory, measured
	// from the filesystem status-change time (ctime) where available.
	// Zero means unlimited.
	// MaxAgeStr is the preferred string form ("7d", "24h"); it takes
	// precedence and may not be combined with MaxAge.
	MaxAge    time.Duration `json:"max_age"`
	MaxAgeStr string        `json:"max_age_str"`

	// RotateProbability is the chance, in [0,1], that a retention
	// pass runs after each successful write. Unset (nil) means
	// DefaultRotateProbability. Use Probability(0) to disable the
	// automatic trigger entirely; Rotate still works.
	RotateProbability *float64 `json:"rotate_probability"`

	// ErrorCallback is an optional function called when recovered
	// errors occur, notably retention deletions that fail. Fatal
	// errors are returned from Log instead and do not pass through
	// the callback.
	ErrorCallback func(operation string, err error) `json:"-"`

	// FileMode is the permission mode for message files (default: 0644).
	FileMode os.FileMode `json:"file_mode"`

	// RetryCount is the number of retries for directory creation and
	// message file writes (default: 3). RetryDelay is the delay
	// between retries (default: 10ms). Name collisions are never
	// retried; they advance the suffix scan instead.
	RetryCount int           `json:"retry_count"`
	RetryDelay time.Duration `json:"retry_delay"`
}

// Sink writes each log message to its own file inside a directory and
// keeps the directory within configured size, count and age bounds.
//
// The sink is synchronous: every operation (filename resolution, file
// creation, retention scan) runs on the caller's goroutine, and a
// message is logged exactly when Log returns nil. There is no internal
// locking; the sink assumes it is the only logical writer to its
// directory for the lifetime of the process. With concurrent writers
// the check-then-create collision resolution is racy, which is an
// accepted limitation, not a supported mode.
//
// Basic usage:
//
//	sink, err := mnemosyne.New("audit", "/var/log/audit.d")
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer sink.Close()
//	sink.Log("user 42 logged in", mnemosyne.LevelInfo, nil)
type Sink struct {
	name     string
	minLevel Level
	maxLevel Level

	dirname  string
	dirMode  os.FileMode
	fileMode os.FileMode

	pattern  string
	nameFunc FilenameFunc

	maxTotalSize int64
	maxFiles     int
	maxAge       time.Duration

	rotateProbability float64
	randFloat         func() float64

	errorCallback func(operation string, err error)

	retryCount int
	retryDelay time.Duration

	pid int

	// High-performance time cache for retention age math and
	// default filename timestamps
	timeCache     *timecache.TimeCache
	timeCacheOnce sync.Once

	// Close protection
	closeOnce sync.Once

	// Telemetry (all atomic)
	writeCount      atomic.Uint64 // Successful writes
	bytesWritten    atomic.Uint64 // Total message bytes written
	collisionCount  atomic.Uint64 // Filename collisions resolved
	retentionPasses atomic.Uint64 // Retention passes executed
	filesDeleted    atomic.Uint64 // Files removed by retention
	totalLatency    atomic.Uint64 // Total write latency in nanoseconds
	lastLatency     atomic.Uint64 // Last write latency in nanoseconds
}

// New creates a Sink with safe defaults: the default timestamp+pid
// filename pattern, no retention limits, and the default rotation
// probability. This is the recommended constructor when retention is
// managed externally.
//
// Example:
//
//	sink, err := mnemosyne.New("events", "/var/log/events.d")
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer sink.Close()
func New(name, dirname string) (*Sink, error) {
	return NewWithConfig(&SinkConfig{
		Name:    name,
		Dirname: dirname,
	})
}

// NewBounded creates a Sink with all three retention limits set.
// Any limit may be disabled individually: pass "" for maxTotalSize or
// maxAge, 0 for maxFiles.
//
// Example:
//
//	// At most 1GB, 10000 files, nothing older than a week.
//	sink, err := mnemosyne.NewBounded("events", "/var/log/events.d", "1GB", 10000, "7d")
func NewBounded(name, dirname, maxTotalSize string, maxFiles int, maxAge string) (*Sink, error) {
	return NewWithConfig(&SinkConfig{
		Name:            name,
		Dirname:         dirname,
		MaxTotalSizeStr: maxTotalSize,
		MaxFiles:        maxFiles,
		MaxAgeStr:       maxAge,
	})
}

// NewDevelopment creates a Sink tuned for development and debugging:
// small retention bounds and a rotation probability of 1, so every
// write enforces the limits and the directory state is deterministic.
//
// Development configuration applied:
//   - MaxTotalSizeStr: "10MB"
//   - MaxFiles: 1000
//   - MaxAgeStr: "1h"
//   - RotateProbability: 1
func NewDevelopment(name, dirname string) (*Sink, error) {
	return NewWithConfig(&SinkConfig{
		Name:              name,
		Dirname:           dirname,
		MaxTotalSizeStr:   "10MB",
		MaxFiles:          1000,
		MaxAgeStr:         "1h",
		RotateProbability: Probability(1),
	})
}

// NewWithConfig creates a Sink from a full configuration. This is the
// constructor with complete control over naming, retention and error
// reporting. All fields except Name and Dirname are optional; unset
// fields use the documented defaults.
//
// The target directory is created here if it does not exist, so
// directory problems surface at construction rather than on the first
// write. The filename pattern is validated here as well.
//
// Example:
//
//	sink, err := mnemosyne.NewWithConfig(&mnemosyne.SinkConfig{
//		Name:            "audit",
//		MinLevel:        mnemosyne.LevelInfo,
//		Dirname:         "/var/log/audit.d",
//		DirMode:         0750,
//		FilenamePattern: "audit-%Y%m%d-%H%M%S.%{pid}",
//		MaxTotalSizeStr: "500MB",
//		MaxFiles:        50000,
//		MaxAgeStr:       "30d",
//		ErrorCallback: func(operation string, err error) {
//			log.Printf("sink error (%s): %v", operation, err)
//		},
//	})
func NewWithConfig(config *SinkConfig) (*Sink, error) {
	if config == nil {
		return nil, errors.New(ErrCodeInvalidConfig, "config cannot be nil")
	}
	if config.Name == "" {
		return nil, errors.New(ErrCodeInvalidConfig, "sink name cannot be empty")
	}
	if config.Dirname == "" {
		return nil, errors.New(ErrCodeInvalidConfig, "dirname cannot be empty")
	}

	s := &Sink{
		name:          config.Name,
		minLevel:      config.MinLevel,
		maxLevel:      config.MaxLevel,
		dirname:       config.Dirname,
		dirMode:       config.DirMode,
		fileMode:      config.FileMode,
		pattern:       config.FilenamePattern,
		nameFunc:      config.FilenameFunc,
		maxTotalSize:  config.MaxTotalSize,
		maxFiles:      config.MaxFiles,
		maxAge:        config.MaxAge,
		errorCallback: config.ErrorCallback,
		retryCount:    config.RetryCount,
		retryDelay:    config.RetryDelay,
		pid:           os.Getpid(),
		randFloat:     rand.Float64,
	}

	// Apply safe defaults for unset values
	if s.maxLevel == 0 {
		s.maxLevel = LevelCritical
	}
	if s.maxLevel < s.minLevel {
		return nil, errors.New(ErrCodeInvalidConfig,
			fmt.Sprintf("max_level %s below min_level %s", s.maxLevel, s.minLevel))
	}
	if s.dirMode == 0 {
		s.dirMode = 0755
	}
	if s.fileMode == 0 {
		s.fileMode = GetDefaultFileMode()
	}
	if s.pattern == "" {
		s.pattern = DefaultFilenamePattern
	}
	if s.retryCount == 0 {
		s.retryCount = 3
	}
	if s.retryDelay == 0 {
		s.retryDelay = 10 * time.Millisecond
	}

	// Parse string-based retention configuration.
	// Validate that numeric and string forms are not mixed.
	if config.MaxTotalSize > 0 && config.MaxTotalSizeStr != "" {
		return nil, errors.New(ErrCodeInvalidConfig,
			"cannot specify both MaxTotalSize and MaxTotalSizeStr; use MaxTotalSizeStr for string-based configuration")
	}
	if config.MaxTotalSizeStr != "" {
		size, err := ParseSize(config.MaxTotalSizeStr)
		if err != nil {
			return nil, errors.Wrap(err, ErrCodeInvalidConfig, "invalid MaxTotalSizeStr")
		}
		s.maxTotalSize = size
	}
	if config.MaxAge > 0 && config.MaxAgeStr != "" {
		return nil, errors.New(ErrCodeInvalidConfig,
			"cannot specify both MaxAge and MaxAgeStr; use MaxAgeStr for string-based configuration")
	}
	if config.MaxAgeStr != "" {
		duration, err := ParseDuration(config.MaxAgeStr)
		if err != nil {
			return nil, errors.Wrap(err, ErrCodeInvalidConfig, "invalid MaxAgeStr")
		}
		s.maxAge = duration
	}

	s.rotateProbability = DefaultRotateProbability
	if config.RotateProbability != nil {
		p := *config.RotateProbability
		if p < 0 || p > 1 {
			return nil, errors.New(ErrCodeInvalidConfig,
				fmt.Sprintf("rotate_probability %v outside [0,1]", p))
		}
		s.rotateProbability = p
	}

	// Validate the pattern once up front so a bad placeholder fails
	// construction, not the first write.
	if s.nameFunc == nil {
		if _, err := expandPattern(s.pattern, time.Now(), s.pid); err != nil {
			return nil, err
		}
	}

	if err := ValidatePathLength(s.dirname); err != nil {
		return nil, errors.Wrap(err, ErrCodeInvalidConfig, "invalid dirname")
	}
	if err := s.ensureDirectory(); err != nil {
		return nil, err
	}

	// Initialize time cache for performance
	s.timeCache = timecache.NewWithResolution(time.Millisecond)

	return s, nil
}

// ensureDirectory creates the target directory if needed and applies
// the configured mode when the sink created it.
func (s *Sink) ensureDirectory() error {
	info, err := os.Stat(s.dirname)
	if err == nil {
		if !info.IsDir() {
			return errors.New(ErrCodeDirectory,
				fmt.Sprintf("%q exists and is not a directory", s.dirname))
		}
		return nil
	}
	if !os.IsNotExist(err) {
		return errors.Wrap(err, ErrCodeDirectory,
			fmt.Sprintf("failed to stat directory %q", s.dirname))
	}

	err = RetryFileOperation(func() error {
		return os.MkdirAll(s.dirname, s.dirMode)
	}, s.retryCount, s.retryDelay)
	if err != nil {
		return errors.Wrap(err, ErrCodeDirectory,
			fmt.Sprintf("failed to create directory %q (check permissions and disk space)", s.dirname))
	}

	// MkdirAll is narrowed by the umask; chmod so the requested mode sticks
	if err := os.Chmod(s.dirname, s.dirMode); err != nil {
		return errors.Wrap(err, ErrCodeDirectory,
			fmt.Sprintf("failed to chmod directory %q", s.dirname))
	}
	return nil
}

// Log writes message verbatim to a new file in the sink's directory
// and, with the configured probability, runs a retention pass.
//
// The filename comes from FilenameFunc when configured, otherwise
// from expanding FilenamePattern with the local time of the call and
// the process id. If the derived name already exists in the
// directory, a numeric suffix is appended (".1", ".2", ...) until an
// unused name is found, so every message produces exactly one new
// file and never overwrites an existing one.
//
// A nil return means the file was created and fully written. On
// error the message is not considered logged. Retention failures
// after a successful write are reported through ErrorCallback and
// never surface here.
//
// attrs carries structured metadata for FilenameFunc; the pattern
// path ignores it. A nil map is fine.
func (s *Sink) Log(message string, level Level, attrs map[string]string) error {
	start := s.now()
	defer func() {
		end := s.now()
		latencyNs := end.Sub(start).Nanoseconds()
		if latencyNs < 0 {
			latencyNs = 0 // Protect against clock skew
		}
		latency := uint64(latencyNs) // #nosec G115 -- latencyNs checked for negative values above
		s.lastLatency.Store(latency)
		s.totalLatency.Add(latency)
	}()

	base, err := s.resolveFilename(message, level, attrs)
	if err != nil {
		return err
	}

	n, err := s.createMessageFile(SanitizeFilename(base), []byte(message))
	if err != nil {
		return err
	}

	s.writeCount.Add(1)
	if n > 0 {
		s.bytesWritten.Add(uint64(n)) // #nosec G115 -- n is a successful write count, never negative
	}

	s.maybeEnforceRetention()
	return nil
}

// resolveFilename produces the base filename for a message, before
// collision resolution.
func (s *Sink) resolveFilename(message string, level Level, attrs map[string]string) (string, error) {
	if s.nameFunc != nil {
		name := s.nameFunc(message, level, attrs)
		if name == "" {
			return "", errors.New(ErrCodeInvalidNamingFunc,
				"filename function returned an empty name")
		}
		return name, nil
	}
	return expandPattern(s.pattern, s.now(), s.pid)
}

// createMessageFile creates a new file for the message, resolving
// name collisions against the live directory, and writes the content.
// Returns the number of bytes written.
//
// The existence check and the create are separate filesystem
// operations; O_EXCL on the create keeps a lost race from silently
// overwriting, in which case the scan simply continues. Transient
// create and write failures are retried per the configured policy;
// a name that turns out to be taken is a collision, not a failure,
// and goes back to the scan without burning retries.
func (s *Sink) createMessageFile(base string, data []byte) (int, error) {
	name := base
	for suffix := 1; ; suffix++ {
		path := filepath.Join(s.dirname, name)
		if _, err := os.Stat(path); err == nil {
			s.collisionCount.Add(1)
			name = fmt.Sprintf("%s.%d", base, suffix)
			continue
		}

		var file *os.File
		var taken bool
		err := RetryFileOperation(func() error {
			f, oerr := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, s.fileMode) // #nosec G304 -- path is derived from validated sink configuration
			if oerr != nil {
				if os.IsExist(oerr) {
					taken = true
					return nil
				}
				return oerr
			}
			file = f
			return nil
		}, s.retryCount, s.retryDelay)
		if err != nil {
			return 0, errors.Wrap(err, ErrCodeWrite,
				fmt.Sprintf("failed to create message file %q", path))
		}
		if taken {
			// Lost the check-then-create race; keep scanning
			s.collisionCount.Add(1)
			name = fmt.Sprintf("%s.%d", base, suffix)
			continue
		}

		written := 0
		werr := RetryFileOperation(func() error {
			n, werr := file.Write(data[written:])
			written += n
			return werr
		}, s.retryCount, s.retryDelay)
		cerr := file.Close()
		if werr != nil {
			return written, errors.Wrap(werr, ErrCodeWrite,
				fmt.Sprintf("failed to write message file %q", path))
		}
		if cerr != nil {
			return written, errors.Wrap(cerr, ErrCodeWrite,
				fmt.Sprintf("failed to close message file %q", path))
		}
		return written, nil
	}
}

// now returns the cached current time, lazily initializing the time
// cache if a zero-value Sink is used directly.
func (s *Sink) now() time.Time {
	s.timeCacheOnce.Do(func() {
		if s.timeCache == nil {
			s.timeCache = timecache.NewWithResolution(time.Millisecond)
		}
	})
	return s.timeCache.CachedTime()
}

// Name returns the sink's identity within a dispatch framework.
func (s *Sink) Name() string {
	return s.name
}

// Dirname returns the sink's target directory.
func (s *Sink) Dirname() string {
	return s.dirname
}

// ShouldHandle reports whether level falls inside the sink's
// configured [MinLevel, MaxLevel] range. Dispatch frameworks that
// filter per sink can call this before Log; the sink never filters
// on its own.
func (s *Sink) ShouldHandle(level Level) bool {
	return level >= s.minLevel && level <= s.maxLevel
}

// Rotate runs a retention pass immediately, regardless of the
// configured probability. Useful for external log management or
// manual triggers (e.g., in response to SIGHUP). With no retention
// limits configured it is a no-op.
//
// Returns nil; individual deletion failures are reported through
// ErrorCallback, matching the best-effort contract of the automatic
// trigger.
func (s *Sink) Rotate() error {
	if s.hasRetentionLimits() {
		s.enforceRetention()
	}
	return nil
}

// Close releases the sink's resources. The sink holds no open file
// handles between writes, so Close only stops the time cache. It is
// safe to call Close multiple times; subsequent calls are no-ops.
// After Close the sink should not be used for further writes.
func (s *Sink) Close() error {
	s.closeOnce.Do(func() {
		if s.timeCache != nil {
			s.timeCache.Stop()
		}
	})
	return nil
}

// Stats is a snapshot of sink telemetry for monitoring. All counters
// are atomic; the snapshot is safe to take concurrently with writes.
type Stats struct {
	// Write statistics
	WriteCount    uint64 `json:"write_count"`     // Successful writes
	TotalBytes    uint64 `json:"total_bytes"`     // Total message bytes written
	AvgLatencyNs  uint64 `json:"avg_latency_ns"`  // Average write latency in nanoseconds
	LastLatencyNs uint64 `json:"last_latency_ns"` // Last write latency in nanoseconds

	// Naming statistics
	CollisionCount uint64 `json:"collision_count"` // Filename collisions resolved

	// Retention statistics
	RetentionPasses uint64 `json:"retention_passes"` // Retention passes executed
	FilesDeleted    uint64 `json:"files_deleted"`    // Files removed by retention

	// Configuration
	MaxTotalSize      int64   `json:"max_total_size"`     // Configured size bound (0 = unlimited)
	MaxFiles          int     `json:"max_files"`          // Configured count bound (0 = unlimited)
	MaxAge            string  `json:"max_age"`            // Configured age bound ("" = unlimited)
	RotateProbability float64 `json:"rotate_probability"` // Configured trigger probability
}

// Stats returns current sink statistics for telemetry and monitoring.
//
// Example:
//
//	stats := sink.Stats()
//	fmt.Printf("writes=%d deleted=%d avg=%dns\n",
//		stats.WriteCount, stats.FilesDeleted, stats.AvgLatencyNs)
func (s *Sink) Stats() Stats {
	writeCount := s.writeCount.Load()
	totalLatency := s.totalLatency.Load()

	var avgLatency uint64
	if writeCount > 0 {
		avgLatency = totalLatency / writeCount
	}

	maxAge := ""
	if s.maxAge > 0 {
		maxAge = s.maxAge.String()
	}

	return Stats{
		WriteCount:        writeCount,
		TotalBytes:        s.bytesWritten.Load(),
		AvgLatencyNs:      avgLatency,
		LastLatencyNs:     s.lastLatency.Load(),
		CollisionCount:    s.collisionCount.Load(),
		RetentionPasses:   s.retentionPasses.Load(),
		FilesDeleted:      s.filesDeleted.Load(),
		MaxTotalSize:      s.maxTotalSize,
		MaxFiles:          s.maxFiles,
		MaxAge:            maxAge,
		RotateProbability: s.rotateProbability,
	}
}

// reportError invokes the error callback if set
func (s *Sink) reportError(operation string, err error) {
	if s.errorCallback != nil {
		s.errorCallback(operation, err)
	}
}
