// errors.go: Error codes for sink failures
//
// Copyright (c) 2025 AGILira
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package mnemosyne

import (
	"github.com/agilira/go-errors"
)

// Error codes returned by Sink operations. Fatal errors carry one of
// these codes; recovered errors (best-effort retention deletes) are
// reported through ErrorCallback instead and never carry a code.
const (
	// ErrCodeInvalidConfig marks a configuration rejected at construction:
	// missing name or directory, rotation probability outside [0,1], or
	// an unparsable size/age string.
	ErrCodeInvalidConfig errors.ErrorCode = "MNEMOSYNE_INVALID_CONFIG"

	// ErrCodeInvalidPattern marks a filename pattern containing an
	// unrecognized placeholder. The message names the offending token.
	ErrCodeInvalidPattern errors.ErrorCode = "MNEMOSYNE_INVALID_PATTERN"

	// ErrCodeInvalidNamingFunc marks a FilenameFunc that returned an
	// empty string. The write that triggered it is not performed.
	ErrCodeInvalidNamingFunc errors.ErrorCode = "MNEMOSYNE_INVALID_NAMING_FUNC"

	// ErrCodeDirectory marks a target directory that cannot be created,
	// is not a directory, or cannot be chmod'ed to the requested mode.
	ErrCodeDirectory errors.ErrorCode = "MNEMOSYNE_DIRECTORY"

	// ErrCodeWrite marks a failed message write. The message is not
	// considered logged.
	ErrCodeWrite errors.ErrorCode = "MNEMOSYNE_WRITE"
)
