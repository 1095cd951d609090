package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/bytedance/sonic"
	log "github.com/sirupsen/logrus"

	"taskboard/auth"
	"taskboard/domain"
)

func main() {
	var (
		count      = flag.Int("count", 1, "number of tokens to generate")
		prefix     = flag.String("prefix", "board-user", "prefix for generated user IDs when count > 1")
		start      = flag.Int("start", 1, "starting index for generated user IDs when count > 1")
		domainName = flag.String("email-domain", "example.com", "domain for generated user emails; empty for none")
		ttl        = flag.Duration("ttl", time.Hour, "token lifetime")
		output     = flag.String("output", "", "file to write generated tokens as a JSON array")
	)
	flag.Parse()

	secret := os.Getenv("TEST_JWT_SECRET")
	if secret == "" {
		log.Fatal("TEST_JWT_SECRET must be set")
	}
	if *count < 1 || *start < 1 {
		log.Fatal("count and start must be at least 1")
	}
	args := flag.Args()
	if len(args) > 0 && *count > 1 {
		log.Fatal("explicit user ID cannot be provided when generating multiple tokens")
	}

	tokens, err := generateTokens([]byte(secret), users(*count, *prefix, *start, *domainName, args), *ttl)
	if err != nil {
		log.Fatalf("generate token: %v", err)
	}
	if *output != "" {
		if err := writeTokens(*output, tokens); err != nil {
			log.Fatalf("write tokens: %v", err)
		}
	}
	fmt.Print(tokens[0])
}

func users(count int, prefix string, start int, emailDomain string, args []string) []domain.User {
	out := make([]domain.User, count)
	for i := range out {
		id := prefix
		switch {
		case len(args) > 0:
			id = args[0]
		case count > 1:
			id = fmt.Sprintf("%s-%d", prefix, start+i)
		}
		out[i] = domain.User{ID: id}
		if emailDomain != "" {
			out[i].Email = id + "@" + emailDomain
		}
	}
	return out
}

func generateTokens(secret []byte, users []domain.User, ttl time.Duration) ([]string, error) {
	tokens := make([]string, len(users))
	for i, u := range users {
		tok, err := auth.TestToken(secret, u, ttl)
		if err != nil {
			return nil, err
		}
		tokens[i] = tok
	}
	return tokens, nil
}

func writeTokens(path string, tokens []string) error {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	data, err := sonic.Marshal(tokens)
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o600)
}
