package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/starford/scribe/internal/session"
)

func credentialFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "username",
			Aliases: []string{"u"},
			Usage:   "Account user name",
			Sources: cli.EnvVars("SCRIBE_USERNAME"),
		},
		&cli.StringFlag{
			Name:    "password",
			Aliases: []string{"p"},
			Usage:   "Account password (prompted when omitted)",
			Sources: cli.EnvVars("SCRIBE_PASSWORD"),
		},
	}
}

// credentials takes flags first and prompts on stdin for anything missing.
func credentials(cmd *cli.Command, in io.Reader, out io.Writer) (session.Credentials, error) {
	c := session.Credentials{Username: cmd.String("username"), Password: cmd.String("password")}
	r := bufio.NewReader(in)
	var err error
	if c.Username == "" {
		if c.Username, err = prompt(r, out, "Username: "); err != nil {
			return c, err
		}
	}
	if c.Password == "" {
		if c.Password, err = prompt(r, out, "Password: "); err != nil {
			return c, err
		}
	}
	return c, nil
}

func prompt(r *bufio.Reader, out io.Writer, label string) (string, error) {
	fmt.Fprint(out, label)
	line, err := r.ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		return "", fmt.Errorf("read %s: %w", strings.TrimSuffix(label, ": "), err)
	}
	return strings.TrimSpace(line), nil
}

func loginCommand() *cli.Command {
	return &cli.Command{
		Name:  "login",
		Usage: "Sign in and store the session credential",
		Flags: credentialFlags(),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			core, err := openCore(cmd)
			if err != nil {
				return err
			}
			c, err := credentials(cmd, os.Stdin, os.Stderr)
			if err != nil {
				return err
			}
			if err := core.Auth.Login(ctx, c); err != nil {
				return err
			}
			fmt.Println("Login Successful")
			return nil
		},
	}
}

func registerCommand() *cli.Command {
	return &cli.Command{
		Name:  "register",
		Usage: "Create an account",
		Flags: credentialFlags(),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			core, err := openCore(cmd)
			if err != nil {
				return err
			}
			c, err := credentials(cmd, os.Stdin, os.Stderr)
			if err != nil {
				return err
			}
			if err := core.Auth.Register(ctx, c); err != nil {
				return err
			}
			fmt.Println("Registration Successful. Run `scribe login` to sign in.")
			return nil
		},
	}
}

func logoutCommand() *cli.Command {
	return &cli.Command{
		Name:  "logout",
		Usage: "Sign out and forget the session credential",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			core, err := openCore(cmd)
			if err != nil {
				return err
			}
			if err := core.Auth.Logout(ctx); err != nil {
				return err
			}
			fmt.Println("Logged out")
			return nil
		},
	}
}
