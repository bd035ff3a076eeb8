//go:build windows
// +build windows

// region/pagesize_windows.go
// Author: momentics <momentics@gmail.com>
//
// No getpagesize(2) equivalent wired here; Windows segments use the
// common x86-64 page size, matching the teacher's bufferpool_windows.go
// fallback-to-constant style for platform queries it doesn't implement.

package region

func detectPageSize() int { return 4096 }
