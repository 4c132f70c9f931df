package store

import "log/slog"

// DB binds a Backend and a Locker to a configuration and a graph registry.
// Models and graphs are created against a DB.
type DB struct {
	backend  Backend
	locker   Locker
	config   Config
	registry *Registry
}

// New creates a new DB with an empty graph registry.
func New(backend Backend, locker Locker, config Config) *DB {
	return NewWithRegistry(backend, locker, config, NewRegistry())
}

// NewWithRegistry creates a new DB sharing an existing graph registry.
func NewWithRegistry(backend Backend, locker Locker, config Config, registry *Registry) *DB {
	config.validate()
	if registry == nil {
		registry = NewRegistry()
	}
	return &DB{
		backend:  backend,
		locker:   locker,
		config:   config,
		registry: registry,
	}
}

// Backend returns the document backend.
func (db *DB) Backend() Backend { return db.backend }

// Registry returns the graph registry consulted by cascade deletes.
func (db *DB) Registry() *Registry { return db.registry }

// Config returns the validated configuration.
func (db *DB) Config() Config { return db.config }

func (db *DB) logger() *slog.Logger { return db.config.Logger }
