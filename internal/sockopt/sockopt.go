// Package sockopt applies the platform-specific socket options
// rtpsend's CLI exposes: router-alert (-a) and multicast TTL on the
// destination address. Source-port binding (-s) is not done here;
// cmd/rtpsend binds the local address when it dials. The spec treats socket
// setup as external plumbing (spec §1 Non-goals), but the options
// themselves are still real per-OS syscalls, grounded the way the
// teacher splits its own socket tuning across build-tagged files.
package sockopt

// RouterAlert sets the IP Router Alert option (RFC 2113) on fd, used
// for RSVP/IGMP-adjacent signalling paths some RTCP deployments rely
// on. On Linux it sets IP_OPTIONS and returns any setsockopt error; on
// Darwin and Windows it is a no-op that always returns nil.
func RouterAlert(fd int) error {
	return setRouterAlert(fd)
}

// MulticastTTL sets the outgoing multicast TTL/hop-limit on fd.
func MulticastTTL(fd int, ttl int) error {
	return setMulticastTTL(fd, ttl)
}
