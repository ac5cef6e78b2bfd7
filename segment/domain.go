package segment

import (
	"net"
	"net/url"
	"strings"

	"golang.org/x/net/publicsuffix"
)

// DomainWarning is returned when the analyzed URLs belong to more than one
// registrable domain.
const DomainWarning = "For best results, compare websites from the same domain"

// registrableDomain returns the eTLD+1 of rawURL ("shop.example.co.uk" ->
// "example.co.uk"). Hosts without a public suffix, such as IPs or
// localhost, are returned as is.
func registrableDomain(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	host := strings.ToLower(u.Hostname())
	if net.ParseIP(host) != nil {
		return host
	}
	d, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return host
	}
	return d
}

func domainWarning(urls []string) string {
	seen := make(map[string]struct{}, len(urls))
	for _, u := range urls {
		seen[registrableDomain(u)] = struct{}{}
	}
	if len(seen) > 1 {
		return DomainWarning
	}
	return ""
}
