// Command rift is the stateless client CLI (spec §4.3): beam, disconnect,
// daemon status|stop|restart, login.
package main

import (
	"fmt"
	"os"

	"github.com/riftlab/rift/internal/cli"
	"github.com/riftlab/rift/internal/client"
)

var version = "dev"

func main() {
	cli.Version = version
	if err := cli.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(client.ExitUserError)
	}
}
