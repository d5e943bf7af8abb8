package main

import (
	"bufio"
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/urfave/cli/v3"
)

func TestPrompt(t *testing.T) {
	var out bytes.Buffer
	r := bufio.NewReader(strings.NewReader("  alice  \nsecret"))

	got, err := prompt(r, &out, "Username: ")
	if err != nil || got != "alice" {
		t.Fatalf("got %q, %v", got, err)
	}
	got, err = prompt(r, &out, "Password: ")
	if err != nil || got != "secret" {
		t.Fatalf("last line without newline: %q, %v", got, err)
	}
	if out.String() != "Username: Password: " {
		t.Errorf("prompts = %q", out.String())
	}
	if _, err := prompt(r, &out, "Again: "); err == nil {
		t.Error("exhausted input should fail")
	}
}

func TestCredentialsPromptOnlyForMissing(t *testing.T) {
	var got struct{ user, pass string }
	cmd := &cli.Command{
		Name:  "login",
		Flags: credentialFlags(),
		Action: func(_ context.Context, cmd *cli.Command) error {
			var out bytes.Buffer
			c, err := credentials(cmd, strings.NewReader("typed-secret\n"), &out)
			if err != nil {
				return err
			}
			got.user, got.pass = c.Username, c.Password
			if out.String() != "Password: " {
				t.Errorf("prompts = %q", out.String())
			}
			return nil
		},
	}
	if err := cmd.Run(context.Background(), []string{"login", "--username", "bob"}); err != nil {
		t.Fatal(err)
	}
	if got.user != "bob" || got.pass != "typed-secret" {
		t.Errorf("credentials = %+v", got)
	}
}
