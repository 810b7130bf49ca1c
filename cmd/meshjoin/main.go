// Command meshjoin loads a sales transaction stream into a star-schema
// warehouse, joining it against rotating windows of the customer and product
// tables.
//
//	meshjoin validate --config meshjoin.yaml
//	meshjoin bootstrap --config meshjoin.yaml
//	meshjoin run --config meshjoin.yaml -v
package main

import (
	"os"

	// register all backends with the storage factory.
	_ "meshjoin/internal/storage/all"
)

func main() {
	if err := NewRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
