//go:build linux
// +build linux

// control/hostname_linux.go
// Author: momentics <momentics@gmail.com>
//
// Linux hostname lookup via uname(2), avoiding a dependency on the
// process environment so SetHostname's initial value matches what the
// real omx_iface_get_hostname ioctl would report.

package control

import "golang.org/x/sys/unix"

func platformHostname() string {
	var uts unix.Utsname
	if err := unix.Uname(&uts); err != nil {
		return ""
	}
	return cstr(uts.Nodename[:])
}

func cstr(b []int8) string {
	n := 0
	for n < len(b) && b[n] != 0 {
		n++
	}
	out := make([]byte, n)
	for i := 0; i < n; i++ {
		out[i] = byte(b[i])
	}
	return string(out)
}
