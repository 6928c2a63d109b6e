// Package security holds the secret-handling pieces shared by toolgate:
// a credential store, log and audit redaction, the audit log itself,
// per-kind rate limits, argument size checks and subprocess environment
// sanitization for script tools.
package security

import (
	"os"
	"slices"
	"sync"
)

// CredentialStore is a thread-safe store for secrets known at runtime
// (provider API keys, the gateway token). Its values feed the Redactor
// and are scrubbed from script tool environments.
type CredentialStore struct {
	mu    sync.RWMutex
	creds map[string]string
}

// NewCredentialStore creates an empty credential store.
func NewCredentialStore() *CredentialStore {
	return &CredentialStore{creds: make(map[string]string)}
}

// Set stores a credential, overwriting any previous value. Empty values
// are ignored.
func (s *CredentialStore) Set(name, value string) {
	if value == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creds[name] = value
}

// SetFromEnv stores the value of each named environment variable that is
// set and non-empty. It returns the names that were found.
func (s *CredentialStore) SetFromEnv(names ...string) []string {
	var found []string
	for _, name := range names {
		if name == "" {
			continue
		}
		if v := os.Getenv(name); v != "" {
			s.Set(name, v)
			found = append(found, name)
		}
	}
	return found
}

// Get returns the credential value and whether it exists.
func (s *CredentialStore) Get(name string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.creds[name]
	return v, ok
}

// Names returns the sorted credential names.
func (s *CredentialStore) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.creds))
	for name := range s.creds {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Values returns all credential values in no particular order.
func (s *CredentialStore) Values() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	values := make([]string, 0, len(s.creds))
	for _, v := range s.creds {
		values = append(values, v)
	}
	return values
}

// Len returns the number of stored credentials.
func (s *CredentialStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.creds)
}
