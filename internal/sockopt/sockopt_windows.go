//go:build windows

package sockopt

import (
	"syscall"

	"golang.org/x/sys/windows"
)

// setRouterAlert: Windows has no portable unprivileged equivalent of
// IP_OPTIONS for this use; treated as a no-op like the teacher's own
// setSockOptBindToDevice stub on Windows.
func setRouterAlert(fd int) error {
	return nil
}

func setMulticastTTL(fd int, ttl int) error {
	return syscall.SetsockoptInt(syscall.Handle(fd), windows.IPPROTO_IP, windows.IP_MULTICAST_TTL, ttl)
}
