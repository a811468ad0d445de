// ctime_darwin.go: ctime-based file age on macOS
//
// Copyright (c) 2025 AGILira
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

//go:build darwin

package mnemosyne

import (
	"os"
	"syscall"
	"time"
)

// fileCtime returns the file's status-change time (ctime). Falls back
// to ModTime if the stat data has an unexpected shape.
func fileCtime(info os.FileInfo) time.Time {
	if st, ok := info.Sys().(*syscall.Stat_t); ok {
		return time.Unix(st.Ctimespec.Sec, st.Ctimespec.Nsec)
	}
	return info.ModTime()
}
