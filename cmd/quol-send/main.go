// Command quol-send sends one control command to the running engine and
// relays its output and exit code.
package main

import (
	"fmt"
	"io"
	"os"

	"quol-input/internal/ipc"
)

var sendFn = ipc.Send

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 || args[0] == "-h" || args[0] == "--help" || args[0] == "help" {
		printUsage(stdout)
		return 0
	}

	req, err := parseCommand(args)
	if err != nil {
		writeLine(stderr, err.Error())
		return 2
	}

	address := ipc.DefaultAddress()
	resp, err := sendFn(address, req)
	if err != nil {
		if ipc.IsConnectionError(err) {
			writeLine(stderr, fmt.Sprintf("quol-input is not running (no server on %s)", address))
			return 1
		}
		writeLine(stderr, err.Error())
		return 1
	}

	if resp.Stdout != "" {
		_, _ = io.WriteString(stdout, resp.Stdout)
	}
	if resp.Stderr != "" {
		_, _ = io.WriteString(stderr, resp.Stderr)
	}
	return resp.ExitCode
}

func writeLine(w io.Writer, message string) {
	_, _ = fmt.Fprintln(w, message)
}
