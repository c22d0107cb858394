package config

import "testing"

func lookupFrom(m map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func TestLoadEnv(t *testing.T) {
	env := LoadEnv(lookupFrom(map[string]string{
		EnvMode:             "production",
		EnvRemoteWriteToken: "tok",
		EnvAllowDestructive: "true",
	}))

	if env.Mode != "production" {
		t.Errorf("Mode = %q, want %q", env.Mode, "production")
	}
	if env.RemoteWriteToken != "tok" {
		t.Errorf("RemoteWriteToken = %q, want %q", env.RemoteWriteToken, "tok")
	}
	if env.AllowDestructive == nil || !*env.AllowDestructive {
		t.Errorf("AllowDestructive = %v, want true", env.AllowDestructive)
	}

	env = LoadEnv(lookupFrom(map[string]string{EnvAllowDestructive: "maybe"}))
	if env.AllowDestructive != nil {
		t.Errorf("AllowDestructive = %v, want nil for unparsable value", *env.AllowDestructive)
	}
}

func TestConfig_ResolveBackend(t *testing.T) {
	remote := map[string]string{
		EnvRemoteReadURL:    "https://edge.example.com/cfg",
		EnvRemoteWriteURL:   "https://api.example.com/cfg/items",
		EnvRemoteWriteToken: "secret",
	}

	tests := []struct {
		name      string
		storeType string
		env       map[string]string
		want      string
		wantErr   bool
	}{
		{name: "auto in development", storeType: "auto", env: remote, want: "memory"},
		{name: "auto in production without remote", storeType: "auto", env: map[string]string{EnvMode: "production"}, want: "memory"},
		{name: "auto in production with remote", storeType: "auto", env: withMode(remote, "production"), want: "remote"},
		{name: "explicit remote configured", storeType: "remote", env: remote, want: "remote"},
		{name: "explicit remote unconfigured", storeType: "remote", env: map[string]string{}, wantErr: true},
		{name: "explicit redis", storeType: "redis", env: map[string]string{}, want: "redis"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewConfig("/data/cms")
			cfg.Store.Type = tt.storeType
			cfg.Apply(LoadEnv(lookupFrom(tt.env)))

			got, err := cfg.ResolveBackend()
			if (err != nil) != tt.wantErr {
				t.Fatalf("ResolveBackend() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ResolveBackend() = %q, want %q", got, tt.want)
			}
		})
	}
}

func withMode(m map[string]string, mode string) map[string]string {
	out := make(map[string]string, len(m)+1)
	for k, v := range m {
		out[k] = v
	}
	out[EnvMode] = mode
	return out
}
