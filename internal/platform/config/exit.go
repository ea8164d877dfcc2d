package config

import (
	"fmt"
	"io"
	"os"
)

// ExitCodef writes a formatted error message to stderr and exits with code.
func ExitCodef(code int, format string, args ...any) {
	writeExit(os.Stderr, format, args...)
	os.Exit(code)
}

func writeExit(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, format+"\n", args...)
}
