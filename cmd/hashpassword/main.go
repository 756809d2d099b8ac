// Command hashpassword reads the admin password from stdin and prints the
// Argon2id hash to place in GUARD_ADMIN_PASSWORD_HASH.
package main

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"github.com/joho/godotenv"

	"github.com/arklim/abuse-guard/internal/infra/config"
	"github.com/arklim/abuse-guard/internal/infra/security"
)

func main() {
	opsToken := flag.Bool("ops-token", false, "also print a random value for GUARD_ADMIN_OPS_TOKEN")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	if err := security.ConfigureArgon2(security.Argon2Config{
		Memory:      cfg.Argon2.Memory,
		Iterations:  cfg.Argon2.Iterations,
		Parallelism: cfg.Argon2.Parallelism,
		SaltLength:  cfg.Argon2.SaltLength,
		KeyLength:   cfg.Argon2.KeyLength,
	}); err != nil {
		log.Fatalf("invalid argon2 settings: %v", err)
	}

	fmt.Fprintln(os.Stderr, "Enter admin password:")
	encoded, err := run(os.Stdin, cfg.Admin.Username)
	if err != nil {
		log.Fatalf("%v", err)
	}

	fmt.Printf("GUARD_ADMIN_PASSWORD_HASH=%s\n", encoded)
	if *opsToken {
		fmt.Printf("GUARD_ADMIN_OPS_TOKEN=%s\n", security.GenerateOpsToken())
	}
}

func run(in io.Reader, username string) (string, error) {
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read password: %w", err)
	}
	password := strings.TrimRight(line, "\r\n")

	if err := security.AdminPasswordValidator(username).Validate(password); err != nil {
		return "", fmt.Errorf("password rejected: %w", err)
	}

	encoded, err := security.HashPassword(password)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return encoded, nil
}
