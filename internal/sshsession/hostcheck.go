package sshsession

import (
	"net"
	"regexp"
)

// hostnameRE accepts DNS labels: alphanumeric with interior hyphens,
// dot-separated, each label at most 63 characters.
var hostnameRE = regexp.MustCompile(`^[a-zA-Z0-9](?:[a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?(?:\.[a-zA-Z0-9](?:[a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?)*$`)

// ValidateHost reports whether host is a syntactically valid hostname or
// IP address.
func ValidateHost(host string) bool {
	if host == "" || len(host) > 255 {
		return false
	}
	if net.ParseIP(host) != nil {
		return true
	}
	return hostnameRE.MatchString(host)
}

// ValidatePort reports whether port is in the valid TCP range.
func ValidatePort(port int) bool {
	return port >= 1 && port <= 65535
}
