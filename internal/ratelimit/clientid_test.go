package ratelimit

import (
	"net/http/httptest"
	"testing"
)

func TestClientKeyFunc(t *testing.T) {
	tests := []struct {
		name       string
		keyHeader  string
		trustXFF   bool
		headers    map[string]string
		remoteAddr string
		want       string
	}{
		{name: "remote addr host", remoteAddr: "10.0.0.1:5555", want: "10.0.0.1"},
		{name: "remote addr without port", remoteAddr: "10.0.0.1", want: "10.0.0.1"},
		{name: "empty remote addr", remoteAddr: "", want: UnknownClient},
		{
			name:       "xff ignored when untrusted",
			headers:    map[string]string{"X-Forwarded-For": "203.0.113.9"},
			remoteAddr: "10.0.0.1:1",
			want:       "10.0.0.1",
		},
		{
			name:       "first xff hop when trusted",
			trustXFF:   true,
			headers:    map[string]string{"X-Forwarded-For": " 203.0.113.9 , 10.0.0.2"},
			remoteAddr: "10.0.0.1:1",
			want:       "203.0.113.9",
		},
		{
			name:       "key header wins",
			keyHeader:  "X-Client-ID",
			trustXFF:   true,
			headers:    map[string]string{"X-Client-ID": "editor-7", "X-Forwarded-For": "203.0.113.9"},
			remoteAddr: "10.0.0.1:1",
			want:       "editor-7",
		},
		{
			name:       "blank key header falls through",
			keyHeader:  "X-Client-ID",
			headers:    map[string]string{"X-Client-ID": "  "},
			remoteAddr: "10.0.0.1:1",
			want:       "10.0.0.1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/", nil)
			r.RemoteAddr = tt.remoteAddr
			for k, v := range tt.headers {
				r.Header.Set(k, v)
			}
			if got := ClientKeyFunc(tt.keyHeader, tt.trustXFF)(r); got != tt.want {
				t.Errorf("key = %q, want %q", got, tt.want)
			}
		})
	}
}
