// ctime_other.go: file age fallback for platforms without ctime
//
// Copyright (c) 2025 AGILira
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

//go:build !linux && !darwin

package mnemosyne

import (
	"os"
	"time"
)

// fileCtime approximates the status-change time with ModTime on
// platforms that do not expose ctime. Message files are written once
// and never modified, so the two clocks coincide in practice.
func fileCtime(info os.FileInfo) time.Time {
	return info.ModTime()
}
