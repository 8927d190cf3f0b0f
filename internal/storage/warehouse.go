// Package storage is the optional SQL warehouse sink. Dimension and fact jobs
// replace their table on every run, so surrogate keys in the warehouse always
// match the exported workbooks.
package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Config selects and opens a backend.
//
// Edge cases:
//   - Kind must match a registered backend ("sqlite", "postgres", "mssql").
//   - DSN is passed through to the backend; validation is backend-specific.
type Config struct {
	Kind string
	DSN  string
}

// Warehouse is implemented by each backend.
type Warehouse interface {
	// Close releases the connection pool. Call once.
	Close()

	// ReplaceTable drops spec.Name when it exists, creates it from spec and
	// inserts rows, all in one transaction. Rows are laid out as
	// spec.Columns. It returns the number of rows inserted.
	ReplaceTable(ctx context.Context, spec TableSpec, rows [][]any) (int64, error)
}

type factory func(ctx context.Context, cfg Config) (Warehouse, error)

var (
	mu        sync.RWMutex
	factories = map[string]factory{}
)

// Register makes a backend available under kind. Backends call it from init.
//
// Panics:
//   - If kind is empty, f is nil, or kind is already registered.
func Register(kind string, f factory) {
	mu.Lock()
	defer mu.Unlock()

	if kind == "" {
		panic("storage: Register called with empty kind")
	}
	if f == nil {
		panic("storage: Register called with nil factory")
	}
	if _, exists := factories[kind]; exists {
		panic(fmt.Sprintf("storage: factory already registered for kind=%q", kind))
	}
	factories[kind] = f
}

// Open constructs the warehouse for cfg.Kind.
//
// Errors:
//   - cfg.Kind empty or not registered (import storage/all to register every backend).
//   - Whatever the backend factory returns (bad DSN, unreachable server).
func Open(ctx context.Context, cfg Config) (Warehouse, error) {
	if cfg.Kind == "" {
		return nil, fmt.Errorf("storage: missing warehouse kind")
	}

	mu.RLock()
	f := factories[cfg.Kind]
	mu.RUnlock()

	if f == nil {
		return nil, fmt.Errorf("unsupported warehouse kind=%s (registered: %v)", cfg.Kind, Kinds())
	}
	w, err := f(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open %s warehouse: %w", cfg.Kind, err)
	}
	return w, nil
}

// Kinds lists registered backends, sorted.
func Kinds() []string {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]string, 0, len(factories))
	for k := range factories {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
