//go:build darwin

package sockopt

import "syscall"

// setRouterAlert: macOS does not expose IP_OPTIONS the way Linux does
// for an unprivileged UDP socket; treat as unsupported rather than
// risk an opaque EINVAL.
func setRouterAlert(fd int) error {
	return nil
}

func setMulticastTTL(fd int, ttl int) error {
	return syscall.SetsockoptInt(fd, syscall.IPPROTO_IP, syscall.IP_MULTICAST_TTL, ttl)
}
