package search

import (
	"context"
	"fmt"
	"net"
	"net/netip"
	"net/url"
	"strings"
	"syscall"

	. "github.com/Usernode-Labs/usernode-dapp-starter/internal/logging"
)

// BlockReason says why a page address was refused.
type BlockReason string

const (
	ReasonInvalid     BlockReason = "invalid URL"
	ReasonScheme      BlockReason = "scheme not allowed"
	ReasonNoHost      BlockReason = "empty hostname"
	ReasonMetadata    BlockReason = "cloud metadata endpoint"
	ReasonResolve     BlockReason = "DNS resolution failed"
	ReasonLoopback    BlockReason = "loopback address"
	ReasonPrivate     BlockReason = "private network address"
	ReasonShared      BlockReason = "shared address space"
	ReasonLinkLocal   BlockReason = "link-local address"
	ReasonMulticast   BlockReason = "multicast address"
	ReasonUnspecified BlockReason = "unspecified address"
)

// URLSafetyError is a page address refused before or while connecting.
type URLSafetyError struct {
	URL    string
	Host   string
	Addr   netip.Addr // zero when no address was involved
	Reason BlockReason
	Detail string
}

func (e *URLSafetyError) Error() string {
	msg := "URL blocked: " + string(e.Reason)
	switch {
	case e.Addr.IsValid() && e.Host != "" && e.Host != e.Addr.String():
		msg += fmt.Sprintf(" (%s resolves to %s)", e.Host, e.Addr)
	case e.Addr.IsValid():
		msg += " (" + e.Addr.String() + ")"
	case e.Detail != "":
		msg += ": " + e.Detail
	}
	return msg
}

// Carrier-grade NAT range; netip has no predicate for it.
var sharedAddressSpace = netip.MustParsePrefix("100.64.0.0/10")

var metadataHosts = []string{
	"metadata.google.internal",
	"metadata.goog",
	"kubernetes.default.svc",
	"kubernetes.default",
	"metadata",
}

// CheckPageURL refuses model-chosen page URLs that are not http(s) or whose
// host resolves to an internal address. Literal IPs skip DNS; netip parsing
// still normalizes forms such as IPv4-mapped IPv6.
func CheckPageURL(ctx context.Context, rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return &URLSafetyError{URL: rawURL, Reason: ReasonInvalid, Detail: err.Error()}
	}
	if s := strings.ToLower(u.Scheme); s != "http" && s != "https" {
		return &URLSafetyError{URL: rawURL, Reason: ReasonScheme, Detail: fmt.Sprintf("%q, only http/https", u.Scheme)}
	}
	host := u.Hostname()
	if host == "" {
		return &URLSafetyError{URL: rawURL, Reason: ReasonNoHost}
	}
	if metadataHost(host) {
		return &URLSafetyError{URL: rawURL, Host: host, Reason: ReasonMetadata, Detail: host}
	}

	addrs, err := resolveHost(ctx, host)
	if err != nil {
		return &URLSafetyError{URL: rawURL, Host: host, Reason: ReasonResolve, Detail: err.Error()}
	}
	for _, a := range addrs {
		if reason := blockedAddr(a); reason != "" {
			L_debug("search: blocked page URL", "url", rawURL, "addr", a.String(), "reason", reason)
			return &URLSafetyError{URL: rawURL, Host: host, Addr: a.Unmap(), Reason: reason}
		}
	}
	return nil
}

func resolveHost(ctx context.Context, host string) ([]netip.Addr, error) {
	if a, err := netip.ParseAddr(host); err == nil {
		return []netip.Addr{a}, nil
	}
	return net.DefaultResolver.LookupNetIP(ctx, "ip", host)
}

// blockedAddr returns why a is refused, or "" if it is public.
func blockedAddr(a netip.Addr) BlockReason {
	a = a.Unmap()
	switch {
	case !a.IsValid():
		return ReasonInvalid
	case a.IsLoopback():
		return ReasonLoopback
	case a.IsPrivate():
		return ReasonPrivate
	case a.IsLinkLocalUnicast():
		return ReasonLinkLocal
	case a.IsMulticast(), a.IsLinkLocalMulticast(), a.IsInterfaceLocalMulticast():
		return ReasonMulticast
	case a.IsUnspecified():
		return ReasonUnspecified
	case sharedAddressSpace.Contains(a):
		return ReasonShared
	}
	return ""
}

func metadataHost(host string) bool {
	host = strings.TrimSuffix(strings.ToLower(host), ".")
	for _, mh := range metadataHosts {
		if host == mh || strings.HasSuffix(host, "."+mh) {
			return true
		}
	}
	return false
}

// dialGuard is a net.Dialer Control hook. It re-checks the address actually
// dialed, so a host that passed CheckPageURL and then re-resolves to an
// internal address is still refused.
func dialGuard(network, address string, _ syscall.RawConn) error {
	ap, err := netip.ParseAddrPort(address)
	if err != nil {
		return &URLSafetyError{Reason: ReasonInvalid, Detail: address}
	}
	if reason := blockedAddr(ap.Addr()); reason != "" {
		return &URLSafetyError{Addr: ap.Addr().Unmap(), Reason: reason}
	}
	return nil
}
