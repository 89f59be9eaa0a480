// cmd/ushadowctl/main.go
//
// Operator CLI for the resolver.  Reads the same conf/ushadow.yaml as the
// service and works on the same files, so overrides written here are seen
// by the running service on its next request.
package main

import (
	"os"

	"github.com/ushadow-io/ushadow/internal/logger"
)

func main() {
	logger.Bootstrap()
	if err := newRootCommand(loadApp).Execute(); err != nil {
		os.Exit(1)
	}
}
