// Package all wires every built-in storage backend into the storage factory.
//
// Importing it for side effects makes the kinds "mysql", "postgres",
// "sqlite" and "mssql" available to storage.OpenSource and
// storage.OpenWarehouse:
//
//	import _ "meshjoin/internal/storage/all"
package all

import (
	_ "meshjoin/internal/storage/mssql"
	_ "meshjoin/internal/storage/mysql"
	_ "meshjoin/internal/storage/postgres"
	_ "meshjoin/internal/storage/sqlite"
)
