package main

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"
)

const passphraseEnv = "RFQCTL_PASSPHRASE"

var rfqctlNow = time.Now

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprintln(stderr, usage())
		return 1
	}
	switch args[0] {
	case "keygen":
		return runKeygen(args[1:], stdout, stderr)
	case "address":
		return runAddress(args[1:], stdout, stderr)
	case "permit":
		return runPermit(args[1:], stdout, stderr)
	case "token":
		return runToken(args[1:], stdout, stderr)
	case "help", "-h", "--help":
		fmt.Fprintln(stdout, usage())
		return 0
	default:
		fmt.Fprintf(stderr, "Unknown command: %s\n", args[0])
		fmt.Fprintln(stderr, usage())
		return 1
	}
}

func usage() string {
	return strings.Join([]string{
		"Usage: rfqctl <command> [flags]",
		"",
		"Commands:",
		"  keygen   -out <path>                       create an encrypted keystore",
		"  address  -keystore <path>                  print the keystore address",
		"  permit   -keystore <path> -asset <sym> ... sign an allowance permit",
		"  token    -subject <addr> [-ttl 1h] ...     issue an rfqd bearer token",
		"",
		"The keystore passphrase is read from " + passphraseEnv + " or prompted for.",
	}, "\n")
}

func printError(w io.Writer, format string, args ...any) int {
	fmt.Fprintf(w, "Error: "+format+"\n", args...)
	return 1
}

// parseDeadline accepts either "+duration" relative to now or unix seconds.
func parseDeadline(raw string) (int64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, fmt.Errorf("deadline required")
	}
	if strings.HasPrefix(raw, "+") {
		d, err := time.ParseDuration(raw[1:])
		if err != nil {
			return 0, fmt.Errorf("invalid deadline %q: %w", raw, err)
		}
		return rfqctlNow().Add(d).Unix(), nil
	}
	value, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid deadline %q", raw)
	}
	return value, nil
}
