// Package safeguard holds the checks applied to untrusted input before it
// reaches the browser or is read into memory: capture targets must be
// public http(s) hosts and remote bodies are read with a hard cap.
package safeguard

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/netip"
	"net/url"
	"strconv"
	"strings"
)

// ErrPrivateTarget is returned when a URL points at a loopback, private or
// link-local address.
var ErrPrivateTarget = errors.New("safeguard: URL targets a private or loopback address")

// ErrUnsafeScheme is returned for anything but http and https.
var ErrUnsafeScheme = errors.New("safeguard: only http and https URLs are allowed")

// ErrTooLarge is returned by LimitedReadAll when the limit is exceeded.
var ErrTooLarge = errors.New("safeguard: body too large")

// LookupFunc resolves a host name to addresses.
type LookupFunc func(ctx context.Context, host string) ([]string, error)

// Guard checks capture targets. The zero value resolves names with
// net.DefaultResolver.
type Guard struct {
	Lookup LookupFunc
}

// CheckTarget rejects rawURL when its scheme is not http(s) or when the
// host is, or resolves to, a non-public address. A name that does not
// resolve is let through; navigation fails on it later anyway.
func (g Guard) CheckTarget(ctx context.Context, rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("safeguard: invalid URL: %w", err)
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
	default:
		return ErrUnsafeScheme
	}
	host := u.Hostname()
	if host == "" {
		return errors.New("safeguard: URL has no host")
	}
	if strings.EqualFold(host, "localhost") || strings.HasSuffix(strings.ToLower(host), ".localhost") {
		return ErrPrivateTarget
	}

	if addr, err := netip.ParseAddr(host); err == nil {
		if !IsPublic(addr) {
			return ErrPrivateTarget
		}
		return nil
	}
	if addr, isIP, err := parseLegacyIPv4(host); isIP {
		if err != nil {
			return fmt.Errorf("safeguard: malformed IPv4 host %q: %w", host, err)
		}
		if !IsPublic(addr) {
			return ErrPrivateTarget
		}
		return nil
	}

	lookup := g.Lookup
	if lookup == nil {
		lookup = net.DefaultResolver.LookupHost
	}
	addrs, err := lookup(ctx, host)
	if err != nil {
		return nil
	}
	for _, a := range addrs {
		if addr, err := netip.ParseAddr(a); err == nil && !IsPublic(addr) {
			return ErrPrivateTarget
		}
	}
	return nil
}

// parseLegacyIPv4 reads the IPv4 forms browsers accept besides the
// dotted quad: fewer than four parts ("127.1"), a single number
// ("2130706433"), hex ("0x7f.1") and octal ("0177.0.0.1") parts. isIP is
// true when the host ends in a numeric part, which makes a browser treat
// it as an address; err is then set if it does not parse as one.
func parseLegacyIPv4(host string) (addr netip.Addr, isIP bool, err error) {
	parts := strings.Split(host, ".")
	if len(parts) > 1 && parts[len(parts)-1] == "" {
		parts = parts[:len(parts)-1]
	}
	if !numericPart(parts[len(parts)-1]) {
		return netip.Addr{}, false, nil
	}
	if len(parts) > 4 {
		return netip.Addr{}, true, errors.New("too many parts")
	}

	nums := make([]uint64, len(parts))
	for i, p := range parts {
		n, err := parseIPv4Part(p)
		if err != nil {
			return netip.Addr{}, true, err
		}
		nums[i] = n
	}

	var v uint64
	for i, n := range nums[:len(nums)-1] {
		if n > 255 {
			return netip.Addr{}, true, fmt.Errorf("part %d out of range", i+1)
		}
		v |= n << (8 * (3 - i))
	}
	last := nums[len(nums)-1]
	if last >= 1<<(8*(5-len(nums))) {
		return netip.Addr{}, true, errors.New("last part out of range")
	}
	v |= last
	return netip.AddrFrom4([4]byte{byte(v >> 24), byte(v >> 16), byte(v >> 8), byte(v)}), true, nil
}

// numericPart reports whether p looks like a number to a browser: decimal
// digits, or 0x followed by hex digits.
func numericPart(p string) bool {
	if p == "" {
		return false
	}
	lp := strings.ToLower(p)
	if strings.HasPrefix(lp, "0x") {
		return strings.Trim(lp[2:], "0123456789abcdef") == ""
	}
	return strings.Trim(p, "0123456789") == ""
}

func parseIPv4Part(p string) (uint64, error) {
	lp := strings.ToLower(p)
	base := 10
	switch {
	case strings.HasPrefix(lp, "0x"):
		lp, base = lp[2:], 16
		if lp == "" {
			return 0, nil
		}
	case len(lp) > 1 && lp[0] == '0':
		lp, base = lp[1:], 8
	}
	n, err := strconv.ParseUint(lp, base, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid part %q", p)
	}
	return n, nil
}

// IsPublic reports whether addr is routable on the public internet.
func IsPublic(addr netip.Addr) bool {
	addr = addr.Unmap()
	switch {
	case !addr.IsValid(),
		addr.IsUnspecified(),
		addr.IsLoopback(),
		addr.IsPrivate(),
		addr.IsLinkLocalUnicast(),
		addr.IsLinkLocalMulticast(),
		addr.IsInterfaceLocalMulticast(),
		addr.IsMulticast():
		return false
	}
	for _, p := range reserved {
		if p.Contains(addr) {
			return false
		}
	}
	return true
}

// reserved lists ranges netip has no predicate for.
var reserved = []netip.Prefix{
	netip.MustParsePrefix("100.64.0.0/10"), // carrier-grade NAT
	netip.MustParsePrefix("192.0.0.0/24"),
	netip.MustParsePrefix("198.18.0.0/15"),
	netip.MustParsePrefix("240.0.0.0/4"),
}

// LimitedReadAll reads at most maxBytes from r and fails with ErrTooLarge
// when there is more.
func LimitedReadAll(r io.Reader, maxBytes int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, maxBytes+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > maxBytes {
		return nil, fmt.Errorf("%w: more than %d bytes", ErrTooLarge, maxBytes)
	}
	return data, nil
}
