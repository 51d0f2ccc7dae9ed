// Command magma builds, watches and serves asset bundles.
package main

import "github.com/zoobzio/magma/internal/cli"

func main() {
	cli.Execute()
}
