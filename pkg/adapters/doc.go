// Package adapters provides one-connection-per-call access to relational sources.
//
// Drivers register themselves from their init() functions (see Register),
// so a binary only needs blank imports of the drivers it wants:
//
//	import (
//	    _ "github.com/ruslano69/sqlassist/pkg/adapters/postgres"
//	    _ "github.com/ruslano69/sqlassist/pkg/adapters/sqlite"
//	)
//
// Adapters never pool. Each Query call runs on the connection opened by Connect,
// and the caller closes the adapter when done.
package adapters
