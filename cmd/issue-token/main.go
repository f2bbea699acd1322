// Command issue-token mints a development bearer token for one or more identities.
//
//	JWT_SIGNING_KEY=secret issue-token -identity 0xA11CE,0xB0B -ttl 2h
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	jwttoken "notary/internal/jwt_token"
	"notary/internal/platform/config"
	id "notary/pkg/domain"
	"notary/pkg/platform/strings"
)

func main() {
	identities := flag.String("identity", "", "comma separated identities to issue tokens for")
	ttl := flag.Duration("ttl", 0, "token lifetime (defaults to JWT_TOKEN_TTL)")
	flag.Parse()

	cfg, err := config.JWTFromEnv()
	if err != nil {
		exitf("invalid configuration: %v", err)
	}
	lifetime := cfg.TokenTTL
	if *ttl > 0 {
		lifetime = *ttl
	}

	names := strings.SplitList(*identities)
	if len(names) == 0 {
		exitf("-identity is required")
	}

	svc := jwttoken.NewJWTService(cfg.SigningKey, cfg.Issuer, cfg.Audience)
	for _, name := range names {
		identity, err := id.ParseIdentity(name)
		if err != nil {
			exitf("identity %q: %v", name, err)
		}
		token, err := svc.GenerateAccessToken(identity, lifetime)
		if err != nil {
			exitf("issue token for %s: %v", identity, err)
		}
		fmt.Printf("%s\t%s\texpires=%s\n", identity, token, time.Now().Add(lifetime).UTC().Format(time.RFC3339))
	}
}

func exitf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
