package main

import (
	"fmt"
	"os"
	"runtime/debug"

	"github.com/vvka-141/csvdelta/internal/cli"
	"github.com/vvka-141/csvdelta/pkg/csvdelta"
)

func main() {
	os.Exit(run())
}

// run executes the CLI and maps its outcome to a process exit code.
// Panics are reported with a stack trace and exit with csvdelta.ExitPanic.
func run() (code int) {
	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(os.Stderr, "panic: %v\n%s\n", r, debug.Stack())
			code = csvdelta.ExitPanic
		}
	}()

	if os.Getenv("CSVDELTA_TEST_PANIC") == "1" {
		panic("intentional test panic")
	}

	if err := cli.Execute(); err != nil {
		return csvdelta.ExitCodeForError(err)
	}
	return csvdelta.ExitSuccess
}
