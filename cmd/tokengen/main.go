package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"storozh.org/internal/auth"
)

func main() {
	log.SetFlags(0)
	var (
		secret  = flag.String("secret", os.Getenv("STOROZH_AUTH_SECRET"), "HS256 signing secret")
		subject = flag.String("sub", "gateway", "token subject: a service name or an operator's user id")
		scopes  = flag.String("scopes", auth.ScopeGateway, "comma-separated scopes (gateway, logs)")
		ttl     = flag.Duration("ttl", 30*24*time.Hour, "token lifetime")
	)
	flag.Parse()

	signer, err := auth.NewSigner(*secret)
	if err != nil {
		log.Fatalf("tokengen: %v", err)
	}
	token, err := signer.GenerateToken(*subject, strings.Split(*scopes, ","), *ttl)
	if err != nil {
		log.Fatalf("tokengen: %v", err)
	}
	fmt.Println(token)
}
