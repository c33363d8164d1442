// Command ingest-worker runs the Crypt4GH ingestion pipeline: consume
// upload notifications, archive payloads into the vault, and report
// progress back to the broker.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/neicnordic/ingest-worker/internal/cli"
)

func main() {
	if err := cli.RootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)

		var consumeErr *cli.ConsumeLoopError
		if errors.As(err, &consumeErr) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}
