// Package all links every storage backend into the binary.
package all

import (
	_ "github.com/VishalVarwani/waterproject/internal/storage/mssql"
	_ "github.com/VishalVarwani/waterproject/internal/storage/postgres"
	_ "github.com/VishalVarwani/waterproject/internal/storage/sqlite"
)
