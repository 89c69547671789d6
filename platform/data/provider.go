// Package data provides engine.DataAccess implementations that do not need a database: a
// static set of datasets loaded from a fixture, and a composite that layers several
// sources.
package data

import (
	"github.com/openagua/go-evaluator/engine"
)

// Provider is the data access used by the engine.
type Provider = engine.DataAccess
