package realtime

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClientIdentity(t *testing.T) {
	tests := []struct {
		name       string
		xff        string
		remoteAddr string
		want       string
	}{
		{name: "remote addr", remoteAddr: "192.0.2.7:51234", want: "192.0.2.7"},
		{name: "ipv6 remote addr", remoteAddr: "[2001:db8::1]:443", want: "2001:db8::1"},
		{name: "forwarded", xff: "203.0.113.9", remoteAddr: "10.0.0.1:80", want: "203.0.113.9"},
		{name: "forwarded chain", xff: " 203.0.113.9 , 10.0.0.2", remoteAddr: "10.0.0.1:80", want: "203.0.113.9"},
		{name: "blank forwarded", xff: " , 10.0.0.2", remoteAddr: "10.0.0.1:80", want: "10.0.0.1"},
		{name: "no port", remoteAddr: "pipe", want: "pipe"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/socket/ws", nil)
			r.RemoteAddr = tt.remoteAddr
			if tt.xff != "" {
				r.Header.Set("X-Forwarded-For", tt.xff)
			}
			assert.Equal(t, tt.want, ClientIdentity(r))
		})
	}
}
