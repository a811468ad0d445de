// pattern.go: Filename pattern expansion
//
// Copyright (c) 2025 AGILira
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package mnemosyne

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/agilira/go-errors"
)

// expandPattern expands a filename pattern with the given local time
// and process id. The placeholder set is closed: anything after a '%'
// that is not recognized fails with ErrCodeInvalidPattern naming the
// offending token, rather than passing through silently and producing
// surprising filenames.
func expandPattern(pattern string, now time.Time, pid int) (string, error) {
	var b strings.Builder
	b.Grow(len(pattern) + 16)

	for i := 0; i < len(pattern); i++ {
		c := pattern[i]
		if c != '%' {
			b.WriteByte(c)
			continue
		}

		if i+1 >= len(pattern) {
			return "", errors.New(ErrCodeInvalidPattern,
				fmt.Sprintf("filename pattern %q ends with a bare %%", pattern))
		}
		i++

		switch pattern[i] {
		case 'Y':
			fmt.Fprintf(&b, "%04d", now.Year())
		case 'y':
			fmt.Fprintf(&b, "%02d", now.Year()%100)
		case 'm':
			fmt.Fprintf(&b, "%02d", int(now.Month()))
		case 'd':
			fmt.Fprintf(&b, "%02d", now.Day())
		case 'H':
			fmt.Fprintf(&b, "%02d", now.Hour())
		case 'M':
			fmt.Fprintf(&b, "%02d", now.Minute())
		case 'S':
			fmt.Fprintf(&b, "%02d", now.Second())
		case 'z':
			b.WriteString(now.Format("-0700"))
		case 'Z':
			zone, _ := now.Zone()
			b.WriteString(zone)
		case '%':
			b.WriteByte('%')
		case '{':
			end := strings.IndexByte(pattern[i:], '}')
			if end < 0 {
				return "", errors.New(ErrCodeInvalidPattern,
					fmt.Sprintf("unterminated placeholder %q in filename pattern %q", pattern[i-1:], pattern))
			}
			token := pattern[i+1 : i+end]
			i += end
			switch token {
			case "pid":
				b.WriteString(strconv.Itoa(pid))
			default:
				return "", errors.New(ErrCodeInvalidPattern,
					fmt.Sprintf("unknown placeholder %%{%s} in filename pattern %q", token, pattern))
			}
		default:
			return "", errors.New(ErrCodeInvalidPattern,
				fmt.Sprintf("unknown placeholder %%%c in filename pattern %q", pattern[i], pattern))
		}
	}

	return b.String(), nil
}
