package util

import (
	"path/filepath"
	"strings"
)

// uploadRule refuses a local file_path before it is read for stamping.
type uploadRule struct {
	reason string
	match  func(lower, base string) bool
}

var uploadRules = []uploadRule{
	{"a kernel or device file", func(lower, _ string) bool {
		for _, root := range []string{"/proc/", "/sys/", "/dev/"} {
			if strings.HasPrefix(lower, root) {
				return true
			}
		}
		return false
	}},
	{"a system credentials file", func(lower, _ string) bool {
		switch lower {
		case "/etc/shadow", "/etc/gshadow", "/etc/sudoers", "/etc/master.passwd":
			return true
		}
		return false
	}},
	{"an integritas-mcp config file", func(lower, _ string) bool {
		// The config file may carry the API key.
		return strings.Contains(lower, "/integritas-mcp/") && strings.HasSuffix(lower, ".yaml")
	}},
	{"an environment file", func(_, base string) bool {
		return strings.HasPrefix(base, ".env")
	}},
	{"a private key or certificate bundle", func(_, base string) bool {
		switch filepath.Ext(base) {
		case ".pem", ".key", ".p12", ".pfx", ".jks", ".keystore":
			return true
		}
		return strings.HasPrefix(base, "id_rsa") || strings.HasPrefix(base, "id_ecdsa") || strings.HasPrefix(base, "id_ed25519")
	}},
	{"a credentials file", func(lower, base string) bool {
		switch base {
		case ".npmrc", ".netrc", ".pgpass", ".git-credentials", "application_default_credentials.json":
			return true
		}
		for _, frag := range []string{"/.aws/credentials", "/.docker/config.json", "/.kube/config", "/.azure/", "/.ssh/"} {
			if strings.Contains(lower, frag) {
				return true
			}
		}
		return false
	}},
}

// UploadDenyReason reports why path must never be read for an upload.
// It returns "" when the path is allowed.
func UploadDenyReason(path string) string {
	if path == "" {
		return ""
	}
	lower := strings.ToLower(filepath.ToSlash(filepath.Clean(path)))
	base := strings.ToLower(filepath.Base(path))
	for _, rule := range uploadRules {
		if rule.match(lower, base) {
			return rule.reason
		}
	}
	return ""
}
