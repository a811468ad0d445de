// Package mnemosyne provides a directory log sink: every message is
// written to its own file inside a target directory, and the
// directory is kept within configured size, count and age bounds by
// probabilistic retention enforcement.
//
// Mnemosyne is meant to sit behind a logging dispatch framework as
// one output destination. The framework owns level filtering and
// message formatting; the sink owns naming, writing and retention.
//
// # Quick Start
//
// Basic usage with defaults (timestamp+pid filenames, no retention):
//
//	sink, err := mnemosyne.New("events", "/var/log/events.d")
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer sink.Close()
//
//	sink.Log("user 42 logged in", mnemosyne.LevelInfo, nil)
//
// Bounded directory with string-based limits:
//
//	sink, err := mnemosyne.NewBounded("events", "/var/log/events.d", "1GB", 10000, "7d")
//
// # Filename Patterns
//
// Filenames come from a pattern expanded with local time and the
// process id:
//
//	%Y %y %m %d %H %M %S   timestamp fields
//	%z %Z                  numeric offset / timezone name
//	%{pid}                 process id
//	%%                     literal percent
//
// The default pattern is "%Y%m%d%H%M%S.%{pid}". Unknown placeholders
// are rejected at construction with an error naming the token. If the
// derived name already exists, a numeric suffix is appended (".1",
// ".2", ...) until an unused name is found, so a message never
// overwrites an existing file.
//
// A FilenameFunc replaces the pattern entirely when full control is
// needed:
//
//	sink, err := mnemosyne.NewWithConfig(&mnemosyne.SinkConfig{
//		Name:    "tickets",
//		Dirname: "tickets.d",
//		FilenameFunc: func(msg string, level mnemosyne.Level, attrs map[string]string) string {
//			return attrs["ticket_id"] + ".txt"
//		},
//	})
//
// # Retention
//
// Three independent bounds, each optional: MaxTotalSize (cumulative
// bytes), MaxFiles (count) and MaxAge (age since ctime). After each
// write, a retention pass runs with probability RotateProbability
// (default 0.25): the directory is listed fresh, entries are ordered
// newest first, and the bounds are applied in the fixed order
// max-files, max-age, max-size, always deleting from the oldest end.
// Rotate() runs a pass unconditionally. Deletion failures are
// reported through ErrorCallback and never fail the write that
// triggered the pass.
//
// Because enforcement is probabilistic, the bounds are eventually
// enforced guardrails, not hard quotas. Set RotateProbability to 1
// for deterministic enforcement on every write, or to 0 (via
// mnemosyne.Probability(0)) to drive retention exclusively through
// Rotate().
//
// # Concurrency
//
// The sink is synchronous and assumes a single logical writer per
// directory: every operation runs on the caller's goroutine, and
// there is no internal locking. Collision resolution is
// check-then-create and therefore racy across concurrent writers;
// this is a documented precondition, not a handled case. O_EXCL on
// the create keeps a lost race from overwriting data.
//
// # Error Handling
//
// Fatal errors (bad configuration, unknown pattern placeholder, empty
// name from a FilenameFunc, failed write) are returned from the call
// and carry a go-errors code; the message is not considered logged.
// Recovered errors (retention deletes that fail) go to the optional
// ErrorCallback:
//
//	sink, err := mnemosyne.NewWithConfig(&mnemosyne.SinkConfig{
//		Name:     "events",
//		Dirname:  "events.d",
//		MaxFiles: 10000,
//		ErrorCallback: func(operation string, err error) {
//			log.Printf("sink error (%s): %v", operation, err)
//		},
//	})
//
// # Telemetry
//
// Stats() returns an atomic snapshot of write, collision and
// retention counters for monitoring.
package mnemosyne
