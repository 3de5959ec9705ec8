// Package handler defines the user task handler capability and the
// name -> constructor registry used to select one from configuration.
package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
)

// Handler processes activity tasks inside a worker subprocess. Init is
// called once at subprocess startup with the worker_config map, before any
// task is run. RunTask returns the task output: a string is sent verbatim,
// nil becomes "{}", anything else is JSON-encoded. Returning an error (or
// panicking) fails the task; a handler may instead report the terminal
// status itself through the Reporter carried in ctx.
type Handler interface {
	Init(config json.RawMessage) error
	RunTask(ctx context.Context, token string, input json.RawMessage) (interface{}, error)
}

// Constructor builds a fresh Handler instance.
type Constructor func() Handler

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Constructor)
)

// Register adds a handler constructor under name. Called from init()
// functions at process startup; duplicate names panic.
func Register(name string, ctor Constructor) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, exists := registry[name]; exists {
		panic(fmt.Sprintf("handler: duplicate registration for %q", name))
	}
	registry[name] = ctor
}

// New resolves name to a registered constructor and builds an instance.
func New(name string) (Handler, error) {
	registryMu.RLock()
	ctor, ok := registry[name]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("handler: unknown handler %q (registered: %v)", name, Names())
	}
	return ctor(), nil
}

// Names returns all registered handler names, sorted.
func Names() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
