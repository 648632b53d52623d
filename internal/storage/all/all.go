// Package all links every storage backend into the binary.
package all

import (
	_ "chatextract/internal/storage/mssql"
	_ "chatextract/internal/storage/postgres"
	_ "chatextract/internal/storage/sqlite"
)
