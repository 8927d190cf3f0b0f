// Package all registers every warehouse backend and the SQL Server driver.
package all

import (
	_ "github.com/microsoft/go-mssqldb"

	_ "pbietl/internal/storage/mssql"
	_ "pbietl/internal/storage/postgres"
	_ "pbietl/internal/storage/sqlite"
)
