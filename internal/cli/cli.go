// Package cli parses gridforge's command-line arguments into an app.Config.
package cli

import (
	"flag"
	"fmt"
	"io"
	"strings"

	"github.com/gridforge/gridforge/internal/app"
)

// ExitError is an error carrying the process exit code it should produce.
type ExitError struct {
	Code    int
	Message string
}

func (e *ExitError) Error() string {
	return e.Message
}

// Parse processes command-line arguments into an app.Config. The second
// return value reports whether the program should exit cleanly (help was
// requested) without treating that as an error. Giving no target is not an
// exit condition: Targets is then empty.
func Parse(args []string, output io.Writer) (*app.Config, bool, error) {
	flagSet := flag.NewFlagSet("gridforge", flag.ContinueOnError)
	flagSet.SetOutput(output)

	flagSet.Usage = func() {
		fmt.Fprint(output, `
gridforge - flattens a parameterized build description into a Ninja manifest.

Usage:
  gridforge [options] [TARGET...]

Arguments:
  TARGET
    One or more canonical target identifiers (//pkg/path:name). If none are
    given, every target reachable under the project root is built.

Options:
`)
		flagSet.PrintDefaults()
	}

	projectRootFlag := flagSet.String("project-root", ".", "Path to the project root (containing project.hcl).")
	outFlag := flagSet.String("out", "build.ninja", "Path to write the generated Ninja manifest.")
	logFormatFlag := flagSet.String("log-format", "text", "Log output format. Options: 'text' or 'json'.")
	logLevelFlag := flagSet.String("log-level", "info", "Set the logging level. Options: 'debug', 'info', 'warn', 'error'.")
	diagnosticFlag := flagSet.Bool("diagnostic", false, "Dump each product's resolved environment as manifest comments.")
	baseEnvFlag := flagSet.String("base-env", "", "Name of the base_env block to use as the project base environment (default: the block named \"default\", if any).")

	if err := flagSet.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return nil, true, nil
		}
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}

	logFormat := strings.ToLower(*logFormatFlag)
	if logFormat != "text" && logFormat != "json" {
		return nil, false, &ExitError{Code: 2, Message: "invalid log-format: must be 'text' or 'json'"}
	}

	logLevel := strings.ToLower(*logLevelFlag)
	switch logLevel {
	case "debug", "info", "warn", "error":
	default:
		return nil, false, &ExitError{Code: 2, Message: "invalid log-level: must be 'debug', 'info', 'warn', or 'error'"}
	}

	cfg := &app.Config{
		ProjectRoot: *projectRootFlag,
		ManifestOut: *outFlag,
		LogFormat:   logFormat,
		LogLevel:    logLevel,
		Diagnostic:  *diagnosticFlag,
		BaseEnv:     *baseEnvFlag,
		Targets:     flagSet.Args(),
	}

	return cfg, false, nil
}
