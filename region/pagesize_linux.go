//go:build linux
// +build linux

// region/pagesize_linux.go
// Author: momentics <momentics@gmail.com>
//
// Linux page size via getpagesize(2), the same x/sys wiring the control
// package uses for uname(2) — here grounding the segment granularity in
// the host's actual page size instead of an assumed constant.

package region

import "golang.org/x/sys/unix"

func detectPageSize() int {
	if n := unix.Getpagesize(); n > 0 {
		return n
	}
	return 4096
}
