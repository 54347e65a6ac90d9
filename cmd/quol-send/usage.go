package main

import (
	"fmt"
	"io"
	"strings"
)

func printUsage(w io.Writer) {
	// Usage output is best-effort.
	_, _ = fmt.Fprintln(w, "quol-send: control a running quol-input engine")
	_, _ = fmt.Fprintln(w, "Usage: quol-send <command> [args]")
	_, _ = fmt.Fprintln(w, "Commands:")
	for _, name := range commandOrder {
		cmd := commandSpecs[name]
		_, _ = fmt.Fprintf(w, "  %-28s %s\n", strings.TrimSpace(name+" "+cmd.args), cmd.help)
	}
}
