// Package secrets holds the credential values a workflow run declares. Values
// live only in memory; they reach the outside world exclusively as process
// environment variables of the steps that reference them.
package secrets

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
)

// Set is a concurrency-safe collection of named secret values.
type Set struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewSet creates an empty Set.
func NewSet() *Set {
	return &Set{values: make(map[string]string)}
}

// Add stores a secret value under name, replacing any previous value.
func (s *Set) Add(name, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[name] = value
}

// Value returns the secret stored under name.
func (s *Set) Value(name string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[name]
	return v, ok
}

// Names returns the sorted secret names.
func (s *Set) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.values))
	for name := range s.values {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Values returns every non-empty secret value, longest first, so that a
// masker replacing them in order never leaves a suffix of a longer secret.
func (s *Set) Values() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	vals := make([]string, 0, len(s.values))
	for _, v := range s.values {
		if v != "" {
			vals = append(vals, v)
		}
	}
	sort.Slice(vals, func(i, j int) bool {
		if len(vals[i]) != len(vals[j]) {
			return len(vals[i]) > len(vals[j])
		}
		return vals[i] < vals[j]
	})
	return vals
}

// Len returns the number of stored secrets.
func (s *Set) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.values)
}

// EnvName maps a secret name to the environment variable it is read from:
// "docker-registry-user" becomes "DOCKER_REGISTRY_USER".
func EnvName(name string) string {
	return strings.ToUpper(strings.NewReplacer("-", "_", ".", "_").Replace(name))
}

// Declaration describes a secret a workflow expects.
type Declaration struct {
	Name     string
	Required bool
}

// FromEnv resolves every declared secret from the process environment. A
// required secret that is unset or empty is an error.
func FromEnv(decls []Declaration) (*Set, error) {
	return FromLookup(decls, os.LookupEnv)
}

// FromLookup is FromEnv with an injectable lookup function.
func FromLookup(decls []Declaration, lookup func(string) (string, bool)) (*Set, error) {
	set := NewSet()
	var missing []string
	for _, d := range decls {
		v, ok := lookup(EnvName(d.Name))
		if !ok || v == "" {
			if d.Required {
				missing = append(missing, fmt.Sprintf("%s (env %s)", d.Name, EnvName(d.Name)))
			}
			continue
		}
		set.Add(d.Name, v)
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("required secrets not provided: %s", strings.Join(missing, ", "))
	}
	return set, nil
}
