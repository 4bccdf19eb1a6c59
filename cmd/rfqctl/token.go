package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"rfqdesk/crypto"
	"rfqdesk/services/rfqd/server"
)

func runToken(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("token", stderr)
	var (
		secret    = fs.String("secret", "", "HMAC secret (prefer -secret-env)")
		secretEnv = fs.String("secret-env", "RFQD_HMAC_SECRET", "environment variable holding the HMAC secret")
		issuer    = fs.String("issuer", "rfqd", "token issuer")
		audience  = fs.String("audience", "", "token audience")
		subject   = fs.String("subject", "", "caller bech32 address")
		ttl       = fs.Duration("ttl", time.Hour, "token lifetime")
	)
	if err := fs.Parse(args); err != nil {
		return 1
	}
	key := strings.TrimSpace(*secret)
	if key == "" && *secretEnv != "" {
		key = strings.TrimSpace(os.Getenv(*secretEnv))
	}
	if key == "" {
		return printError(stderr, "HMAC secret required; pass -secret or set %s", *secretEnv)
	}
	if _, err := crypto.ParseAccount(*subject); err != nil {
		return printError(stderr, "subject: %v", err)
	}
	token, err := server.IssueToken([]byte(key), *issuer, *audience, *subject, *ttl, rfqctlNow())
	if err != nil {
		return printError(stderr, "issue token: %v", err)
	}
	fmt.Fprintln(stdout, token)
	return 0
}
