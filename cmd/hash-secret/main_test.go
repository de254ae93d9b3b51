package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/MGallo-Code/herald/internal/auth"
)

func TestRunPrintsVerifiableHash(t *testing.T) {
	var out bytes.Buffer
	if err := run(strings.NewReader("s3cret\n"), &out); err != nil {
		t.Fatalf("run: %v", err)
	}
	hash, ok := strings.CutPrefix(strings.TrimSpace(out.String()), "ADMIN_SECRET_HASH=")
	if !ok {
		t.Fatalf("unexpected output %q", out.String())
	}

	admin, err := auth.NewAdminSecret("", hash)
	if err != nil {
		t.Fatalf("NewAdminSecret: %v", err)
	}
	if !admin.Verify("s3cret") {
		t.Error("hash does not verify the original secret")
	}
	if admin.Verify("s3cret\n") {
		t.Error("trailing newline must not be part of the secret")
	}
}

func TestRunRejectsEmpty(t *testing.T) {
	for _, in := range []string{"", "\n", "\r\n"} {
		if err := run(strings.NewReader(in), &bytes.Buffer{}); err == nil {
			t.Errorf("input %q: expected error", in)
		}
	}
}
