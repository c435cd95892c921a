// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CivGrid Contributors

package storage

import (
	"path/filepath"

	"github.com/samber/oops"
)

// Open constructs the provider named by typ. dataDir roots the
// file-backed providers; databaseURL configures postgres.
func Open(typ, dataDir, databaseURL string) (Provider, error) {
	switch typ {
	case "json":
		return NewJSONProvider(filepath.Join(dataDir, "json")), nil
	case "sqlite":
		return NewSQLiteProvider(filepath.Join(dataDir, "civgrid.db")), nil
	case "postgres":
		if databaseURL == "" {
			return nil, oops.Code("config_invalid").Errorf("postgres storage requires a database URL")
		}
		return NewPostgresProvider(databaseURL), nil
	default:
		return nil, oops.Code("config_invalid").Errorf("unknown storage type %q", typ)
	}
}
