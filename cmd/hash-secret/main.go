// Command hash-secret reads an admin secret from stdin and prints an
// ADMIN_SECRET_HASH line for herald's environment.
//
//	echo -n 'my-admin-secret' | go run ./cmd/hash-secret
package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/MGallo-Code/herald/internal/auth"
)

func main() {
	if err := run(os.Stdin, os.Stdout); err != nil {
		slog.Error("hash secret", "err", err)
		os.Exit(1)
	}
}

// run hashes the first line of in and writes the env assignment to out.
func run(in io.Reader, out io.Writer) error {
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("read secret: %w", err)
	}
	secret := strings.TrimRight(line, "\r\n")
	if secret == "" {
		return errors.New("secret is empty")
	}

	hash, err := auth.HashSecret(secret)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(out, "ADMIN_SECRET_HASH=%s\n", hash)
	return err
}
