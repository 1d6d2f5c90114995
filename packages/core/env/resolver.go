package env

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"sync"

	"github.com/abdul-hamid-achik/beaconspec/packages/builtin"
)

var variablePattern = regexp.MustCompile(`\{\{([^}]+)\}\}`)

// WarnFunc is called for every placeholder that could not be resolved.
type WarnFunc func(format string, args ...any)

// Resolver expands {{name}} from its variables, falling back to the process
// environment, and {{$fn(args)}} through the builtin registry. Unresolved
// placeholders are left in place.
type Resolver struct {
	mu        sync.RWMutex
	variables map[string]string
	funcs     *builtin.Registry
	warnFunc  WarnFunc
	useOSEnv  bool
}

func NewResolver() *Resolver {
	return &Resolver{
		variables: make(map[string]string),
		funcs:     builtin.NewRegistry(),
		useOSEnv:  true,
	}
}

// SetWarnFunc sets a function to be called when warnings occur (e.g., unresolved variables)
func (r *Resolver) SetWarnFunc(fn WarnFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.warnFunc = fn
}

// SetUseOSEnv toggles the process environment fallback.
func (r *Resolver) SetUseOSEnv(use bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.useOSEnv = use
}

func (r *Resolver) warn(format string, args ...any) {
	r.mu.RLock()
	fn := r.warnFunc
	r.mu.RUnlock()
	if fn != nil {
		fn(format, args...)
	}
}

// SetVariables adds vars, overriding existing names.
func (r *Resolver) SetVariables(vars map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for k, v := range vars {
		r.variables[k] = v
	}
}

func (r *Resolver) SetVariable(name, value string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.variables[name] = value
}

func (r *Resolver) lookup(name string) (string, bool) {
	r.mu.RLock()
	v, ok := r.variables[name]
	useOS := r.useOSEnv
	r.mu.RUnlock()
	if ok {
		return v, true
	}
	if useOS {
		return os.LookupEnv(name)
	}
	return "", false
}

func (r *Resolver) Resolve(input string) string {
	if !strings.Contains(input, "{{") {
		return input
	}
	return variablePattern.ReplaceAllStringFunc(input, func(match string) string {
		expr := strings.TrimSpace(match[2 : len(match)-2])

		if strings.HasPrefix(expr, "$") {
			call := expr[1:]
			if result, ok := r.funcs.Call(call); ok {
				return fmt.Sprintf("%v", result)
			}
			r.warn("unresolved function call: %s", call)
			return match
		}

		if val, ok := r.lookup(expr); ok {
			return val
		}
		r.warn("unresolved variable: %s", expr)
		return match
	})
}
