//go:build linux

package sockopt

import (
	"syscall"

	"golang.org/x/sys/unix"
)

// setRouterAlert sets IP_OPTIONS to a minimal Router Alert option
// (RFC 2113: type 0x94, length 4, value 0) ahead of any payload.
func setRouterAlert(fd int) error {
	opt := []byte{0x94, 0x04, 0x00, 0x00}
	return syscall.SetsockoptString(fd, syscall.IPPROTO_IP, unix.IP_OPTIONS, string(opt))
}

func setMulticastTTL(fd int, ttl int) error {
	return syscall.SetsockoptInt(fd, syscall.IPPROTO_IP, syscall.IP_MULTICAST_TTL, ttl)
}
