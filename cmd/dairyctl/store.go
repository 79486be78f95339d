package main

import (
	"fmt"

	"github.com/doodhwala/billing/internal/config"
	"github.com/doodhwala/billing/store"
	"github.com/doodhwala/billing/store/gormstore"
	"github.com/doodhwala/billing/store/memory"
)

// openStore returns the backend named by the configuration.
func openStore(c *config.Config) (store.Store, error) {
	switch c.Driver {
	case config.DriverMemory:
		return memory.New(), nil
	case config.DriverPostgres:
		return gormstore.NewPostgres(c.DatabaseURL)
	case config.DriverMySQL:
		return gormstore.NewMySQL(c.DatabaseURL)
	}
	return nil, fmt.Errorf("unsupported driver %q", c.Driver)
}
