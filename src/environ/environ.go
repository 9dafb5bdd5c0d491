// Package environ models the process environment as an explicit value.
// Bootstrap phases derive new environments from old ones instead of calling
// os.Setenv, and the final value is handed to the entry point and to any
// subprocess it starts.
package environ

import (
	"os"
	"sort"
	"strings"
)

// Env is an immutable name to value mapping. The zero value is empty and
// ready to use. Methods that change the environment return a copy.
type Env struct {
	vars map[string]string
}

// FromOS snapshots the current process environment
func FromOS() Env {
	return FromList(os.Environ())
}

// FromList builds an Env from KEY=VALUE pairs. Later duplicates win,
// matching how the OS resolves a duplicated variable.
func FromList(pairs []string) Env {
	vars := make(map[string]string, len(pairs))
	for _, kv := range pairs {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || k == "" {
			continue
		}
		vars[k] = v
	}
	return Env{vars: vars}
}

// Get returns the value of key or "" if unset
func (e Env) Get(key string) string {
	return e.vars[key]
}

// Lookup returns the value of key and whether it is set
func (e Env) Lookup(key string) (string, bool) {
	v, ok := e.vars[key]
	return v, ok
}

// Len returns the number of variables
func (e Env) Len() int {
	return len(e.vars)
}

// With returns a copy of e with key set to value
func (e Env) With(key, value string) Env {
	next := e.clone()
	next.vars[key] = value
	return next
}

// Without returns a copy of e with key removed
func (e Env) Without(key string) Env {
	if _, ok := e.vars[key]; !ok {
		return e
	}
	next := e.clone()
	delete(next.vars, key)
	return next
}

// PrependPath returns a copy of e with dir placed first in the list
// variable key (PATH-style, separated by os.PathListSeparator).
func (e Env) PrependPath(key, dir string) Env {
	cur := e.vars[key]
	if cur == "" {
		return e.With(key, dir)
	}
	return e.With(key, dir+string(os.PathListSeparator)+cur)
}

// SplitList returns the entries of a PATH-style variable, skipping empties
func (e Env) SplitList(key string) []string {
	var out []string
	for _, p := range strings.Split(e.vars[key], string(os.PathListSeparator)) {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Environ returns the KEY=VALUE form, sorted by key, suitable for exec.Cmd.Env
func (e Env) Environ() []string {
	keys := make([]string, 0, len(e.vars))
	for k := range e.vars {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k+"="+e.vars[k])
	}
	return out
}

// Map returns a copy of the variables
func (e Env) Map() map[string]string {
	return e.clone().vars
}

func (e Env) clone() Env {
	vars := make(map[string]string, len(e.vars)+1)
	for k, v := range e.vars {
		vars[k] = v
	}
	return Env{vars: vars}
}
