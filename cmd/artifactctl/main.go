package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

var version = "dev"

var commands = map[string]func(context.Context, []string) error{
	"upload":   runUpload,
	"download": runDownload,
	"list":     runList,
	"get":      runGet,
	"delete":   runDelete,
}

func usage() {
	fmt.Fprintf(os.Stderr, `artifactctl - CI artifact store client (version %s)

Usage:
  artifactctl <command> [options]

Commands:
  upload     Archive files and store them as a named artifact of this run
  download   Extract an artifact into a directory
  list       List the artifacts of a run
  get        Show the metadata of one artifact
  delete     Delete an artifact

The store and the run are read from BUCKET_NAME, GITHUB_REPOSITORY,
GITHUB_RUN_ID, ENDPOINT, REGION, ACCESS_KEY and SECRET_KEY, optionally
from a .env file or a YAML file given with --config.

Run 'artifactctl <command> -h' for command-specific help.
`, version)
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	if cmd == "-h" || cmd == "--help" || cmd == "help" {
		usage()
		os.Exit(0)
	}
	if cmd == "-v" || cmd == "--version" || cmd == "version" {
		fmt.Println(version)
		os.Exit(0)
	}

	fn, ok := commands[cmd]
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", cmd)
		usage()
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := fn(ctx, os.Args[2:])
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
