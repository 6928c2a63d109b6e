package security

import (
	"os"
	"strings"
)

// sensitiveEnvPrefixes are stripped from script tool environments.
var sensitiveEnvPrefixes = []string{
	"OPENAI_",
	"ANTHROPIC_",
	"AWS_SECRET",
	"AWS_SESSION_TOKEN",
	"GITHUB_TOKEN",
	"GH_TOKEN",
	"GITLAB_TOKEN",
}

// sensitiveEnvExact are stripped by exact name only, so DB_PORT and
// DATABASE_HOST survive.
var sensitiveEnvExact = map[string]struct{}{
	"DATABASE_URL":           {},
	"DB_PASSWORD":            {},
	"REDIS_PASSWORD":         {},
	"SMTP_PASSWORD":          {},
	"TOOLGATE_GATEWAY_TOKEN": {},
}

// minScrubbedSecret avoids scrubbing short values like "yes" from
// unrelated variables.
const minScrubbedSecret = 8

// SanitizedEnv returns os.Environ() without sensitive variables. If store
// is non-nil its values are also scrubbed from the variables that remain.
func SanitizedEnv(store *CredentialStore) []string {
	return sanitize(os.Environ(), store)
}

func sanitize(env []string, store *CredentialStore) []string {
	var secrets []string
	if store != nil {
		for _, s := range store.Values() {
			if len(s) >= minScrubbedSecret {
				secrets = append(secrets, s)
			}
		}
	}

	out := make([]string, 0, len(env))
	for _, entry := range env {
		key, _, ok := strings.Cut(entry, "=")
		if !ok || isSensitiveEnvVar(key) {
			continue
		}
		for _, secret := range secrets {
			entry = strings.ReplaceAll(entry, secret, RedactPlaceholder)
		}
		out = append(out, entry)
	}
	return out
}

func isSensitiveEnvVar(name string) bool {
	upper := strings.ToUpper(name)
	if _, ok := sensitiveEnvExact[upper]; ok {
		return true
	}
	for _, prefix := range sensitiveEnvPrefixes {
		if strings.HasPrefix(upper, prefix) {
			return true
		}
	}
	return false
}
