// ctime_linux.go: ctime-based file age on Linux
//
// Copyright (c) 2025 AGILira
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

//go:build linux

package mnemosyne

import (
	"os"
	"syscall"
	"time"
)

// fileCtime returns the file's status-change time (ctime). Retention
// age is measured from ctime rather than mtime, matching the age a
// directory scan with stat(2) would observe. Falls back to ModTime if
// the stat data has an unexpected shape.
func fileCtime(info os.FileInfo) time.Time {
	if st, ok := info.Sys().(*syscall.Stat_t); ok {
		return time.Unix(st.Ctim.Sec, st.Ctim.Nsec)
	}
	return info.ModTime()
}
