package env

import (
	"os"
	"strings"
)

type Var map[string]string

// Env composes environments for spawned subprocesses.
// The OS environment is the base, Var holds engine-wide overrides, and
// per-spawn entries are applied last.
type Env struct {
	Var Var // global variables (K->V)
	env Var // cached base from OS environment
}

func New() *Env {
	return &Env{Var: make(Var)}
}

// splitKV splits a "K=V" entry. Entries without '=' or with an empty key
// report ok=false and are skipped by every caller.
func splitKV(kv string) (k, v string, ok bool) {
	i := strings.IndexByte(kv, '=')
	if i <= 0 {
		return "", "", false
	}
	return kv[:i], kv[i+1:], true
}

// FromOS caches the current process environment as the base.
func (e *Env) FromOS() {
	base := make(Var, len(os.Environ()))
	for _, kv := range os.Environ() {
		if k, v, ok := splitKV(kv); ok {
			base[k] = v
		}
	}
	e.env = base
}

// Set sets a global variable K=V.
func (e *Env) Set(k, v string) {
	if e.Var == nil {
		e.Var = make(Var)
	}
	e.Var[k] = v
}

// Unset removes a global variable.
func (e *Env) Unset(k string) {
	if e.Var != nil {
		delete(e.Var, k)
	}
}

// SetAll applies a slice of "K=V" entries as global overrides, skipping
// malformed entries.
func (e *Env) SetAll(kvs []string) {
	for _, kv := range kvs {
		if k, v, ok := splitKV(kv); ok {
			e.Set(k, v)
		}
	}
}

// Merge composes the environment for one spawn. Precedence, lowest first:
// cached OS base, engine-wide Var overrides, then perSpawn "K=V" entries.
// defaults fill keys still unset after that. Values carry ${VAR} expansion
// against the composed map (single pass, no recursion).
func (e *Env) Merge(perSpawn []string, defaults Var) []string {
	if e.env == nil {
		e.FromOS()
	}
	m := make(Var, len(e.env)+len(e.Var)+len(perSpawn))
	for k, v := range e.env {
		m[k] = v
	}
	for k, v := range e.Var {
		if k != "" {
			m[k] = v
		}
	}
	for _, kv := range perSpawn {
		if k, v, ok := splitKV(kv); ok {
			m[k] = v
		}
	}
	for k, v := range defaults {
		if k == "" {
			continue
		}
		if _, ok := m[k]; !ok {
			m[k] = v
		}
	}
	out := make([]string, 0, len(m))
	for k, v := range m {
		out = append(out, k+"="+expand(v, m))
	}
	return out
}

// expand replaces ${KEY} references using m; unknown references are left
// as-is.
func expand(s string, m Var) string {
	if !strings.Contains(s, "${") {
		return s
	}
	for k, v := range m {
		s = strings.ReplaceAll(s, "${"+k+"}", v)
	}
	return s
}
