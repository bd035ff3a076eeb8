//go:build windows
// +build windows

// control/hostname_windows.go
// Author: momentics <momentics@gmail.com>
//
// Windows fallback: no uname(2) equivalent wired here, so the initial
// hostname comes from the interface's own Hostname field (the caller's
// NewBoard falls back to i.Hostname when this returns "").

package control

func platformHostname() string { return "" }
