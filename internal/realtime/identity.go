package realtime

import (
	"net"
	"net/http"
	"strings"
)

// ClientIdentity returns the network identity used to deduplicate viewers: the first
// X-Forwarded-For entry when present, else the remote IP without its port.
func ClientIdentity(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if first = strings.TrimSpace(first); first != "" {
			return first
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
