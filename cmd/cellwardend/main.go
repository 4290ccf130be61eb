package main

import (
	"fmt"
	"os"
	"runtime"
	"strings"
)

// Version information, set via ldflags during build.
var (
	version   = "0.1.0-dev"
	commit    = "unknown"
	buildDate = "unknown"
)

var configPath string

func main() {
	opts, args := parseGlobalFlags(os.Args[1:])
	configPath = opts.configPath

	if len(args) == 0 {
		printHelp()
		os.Exit(0)
	}

	os.Exit(dispatchCommand(args))
}

type globalOptions struct {
	configPath string
}

// parseGlobalFlags strips the flags cellwardend accepts before any
// subcommand name and returns what's left as the subcommand + its args.
func parseGlobalFlags(raw []string) (globalOptions, []string) {
	var opts globalOptions
	remaining := make([]string, 0, len(raw))
	var nextConfig bool

	for _, arg := range raw {
		if nextConfig {
			opts.configPath = arg
			nextConfig = false
			continue
		}
		switch {
		case arg == "-c" || arg == "--config":
			nextConfig = true
		case strings.HasPrefix(arg, "--config="):
			opts.configPath = strings.TrimPrefix(arg, "--config=")
		default:
			remaining = append(remaining, arg)
		}
	}
	return opts, remaining
}

func dispatchCommand(args []string) int {
	switch args[0] {
	case "--version", "-v", "version":
		printVersion()
		return 0
	case "--help", "-h", "help":
		printHelp()
		return 0
	case "serve":
		return runCommand(runServeCommand, args[1:])
	case "migrate":
		return runCommand(runMigrateCommand, args[1:])
	case "config":
		return runCommand(runConfigCommand, args[1:])
	case "doctor":
		return runCommand(runConfigCommand, []string{"check"})
	default:
		if strings.HasPrefix(args[0], "-") {
			fmt.Fprintf(os.Stderr, "Error: unknown flag: %s\n", args[0])
		} else {
			fmt.Fprintf(os.Stderr, "Error: unknown command: %s\n", args[0])
		}
		fmt.Fprintln(os.Stderr, "Run 'cellwardend --help' for usage.")
		return 1
	}
}

func runCommand(handler func([]string) error, args []string) int {
	if err := handler(args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return exitCodeForError(err)
	}
	return 0
}

func printHelp() {
	fmt.Println("cellwardend - permission, sandbox, and audit daemon for spreadsheet AI tool use")
	fmt.Println()
	fmt.Println("USAGE:")
	fmt.Println("  cellwardend [FLAGS] <command>")
	fmt.Println()
	fmt.Println("COMMANDS:")
	fmt.Println("  serve                 Run the durable audit pipeline (queue flushing to the SIEM)")
	fmt.Println("  migrate               Apply the durable audit queue's on-disk schema")
	fmt.Println("  config check          Validate configuration and report warnings")
	fmt.Println("  config show           Print the effective configuration")
	fmt.Println("  config path           Print resolved configuration and data paths")
	fmt.Println("  doctor                Alias for config check")
	fmt.Println()
	fmt.Println("FLAGS:")
	fmt.Println("  -c, --config <path>   Use a specific YAML config file")
	fmt.Println("  -v, --version         Show version information")
	fmt.Println("  -h, --help            Show this help")
	fmt.Println()
	fmt.Println("ENVIRONMENT:")
	fmt.Println("  CELLWARDEN_SIEM_ENDPOINT       Override the SIEM export endpoint")
	fmt.Println("  CELLWARDEN_SIEM_AUTH_TOKEN     Override the SIEM export auth token")
	fmt.Println("  CELLWARDEN_QUEUE_DIR           Override the durable audit queue directory")
	fmt.Println("  CELLWARDEN_SANDBOX_WORKER_PATH Override the sandbox worker script path")
	fmt.Println("  CELLWARDEN_SANDBOX_TIMEOUT_MS  Override the default sandbox run timeout")
}

func printVersion() {
	fmt.Printf("cellwardend %s\n", version)
	if commit != "unknown" {
		fmt.Printf("  Commit:     %s\n", commit)
	}
	if buildDate != "unknown" {
		fmt.Printf("  Built:      %s\n", buildDate)
	}
	fmt.Printf("  Go version: %s\n", runtime.Version())
}
