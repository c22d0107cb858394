package config

import (
	"fmt"
	"os"
	"strconv"
)

// Environment variables read once at startup. Their presence or absence
// changes backend selection and gates destructive content operations.
const (
	EnvMode             = "CMS_ENV"
	EnvRemoteReadURL    = "CMS_REMOTE_READ_URL"
	EnvRemoteReadToken  = "CMS_REMOTE_READ_TOKEN"
	EnvRemoteWriteURL   = "CMS_REMOTE_WRITE_URL"
	EnvRemoteWriteToken = "CMS_REMOTE_WRITE_TOKEN"
	EnvAllowDestructive = "CMS_ALLOW_DESTRUCTIVE"
	EnvPassphrase       = "CMS_PASSPHRASE"
)

// Env is the snapshot of environment toggles taken at startup.
type Env struct {
	Mode             string
	RemoteReadURL    string
	RemoteReadToken  string
	RemoteWriteURL   string
	RemoteWriteToken string
	AllowDestructive *bool
	Passphrase       string
}

// LoadEnv reads the environment toggles through lookup (os.LookupEnv in production).
func LoadEnv(lookup func(string) (string, bool)) Env {
	get := func(k string) string {
		v, _ := lookup(k)
		return v
	}
	env := Env{
		Mode:             get(EnvMode),
		RemoteReadURL:    get(EnvRemoteReadURL),
		RemoteReadToken:  get(EnvRemoteReadToken),
		RemoteWriteURL:   get(EnvRemoteWriteURL),
		RemoteWriteToken: get(EnvRemoteWriteToken),
		Passphrase:       get(EnvPassphrase),
	}
	if v, ok := lookup(EnvAllowDestructive); ok && v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			env.AllowDestructive = &b
		}
	}
	return env
}

// LoadOSEnv reads the toggles from the process environment.
func LoadOSEnv() Env {
	return LoadEnv(os.LookupEnv)
}

// Apply overlays the environment on top of the file configuration.
// Environment values win over file values when set.
func (c *Config) Apply(env Env) {
	if env.Mode != "" {
		c.Environment = env.Mode
	}
	if env.RemoteReadURL != "" {
		c.Store.RemoteReadURL = env.RemoteReadURL
	}
	if env.RemoteReadToken != "" {
		c.Store.RemoteReadToken = env.RemoteReadToken
	}
	if env.RemoteWriteURL != "" {
		c.Store.RemoteWriteURL = env.RemoteWriteURL
	}
	if env.RemoteWriteToken != "" {
		c.Store.RemoteWriteToken = env.RemoteWriteToken
	}
	if env.AllowDestructive != nil {
		c.Sandbox.AllowDestructive = *env.AllowDestructive
	}
}

// Production reports whether the production flag is set.
func (c *Config) Production() bool {
	return c.Environment == "production"
}

// ResolveBackend turns the configured store type into a concrete backend name.
//
// "auto" routes to the remote service only when the production flag and the
// remote-configured flag are both true, and to the process-local map otherwise.
// An explicit "remote" without remote settings is an error.
func (c *Config) ResolveBackend() (string, error) {
	switch c.Store.Type {
	case "auto", "":
		if c.Production() && c.Store.RemoteConfigured() {
			return "remote", nil
		}
		return "memory", nil
	case "remote":
		if !c.Store.RemoteConfigured() {
			return "", fmt.Errorf("remote store requires remote_read_url, remote_write_url and remote_write_token")
		}
		return "remote", nil
	default:
		return c.Store.Type, nil
	}
}
