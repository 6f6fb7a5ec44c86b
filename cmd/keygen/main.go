// Command keygen creates the cooperative's issuer key and prints it as
// environment values for the server.
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/urfave/cli/v2"

	"semear/internal/did"
)

func main() {
	if err := newApp(os.Stdout).Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "keygen:", err)
		os.Exit(1)
	}
}

func newApp(out io.Writer) *cli.App {
	return &cli.App{
		Name:      "keygen",
		Usage:     "generate the cooperative issuer key",
		Writer:    out,
		ErrWriter: os.Stderr,
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "mnemonic",
				Usage: "derive the key from a fresh 24-word backup phrase",
			},
			&cli.StringFlag{
				Name:    "recover",
				Usage:   "rebuild the key from an existing backup phrase",
				EnvVars: []string{"COOPERATIVA_MNEMONIC"},
			},
			&cli.StringFlag{
				Name:    "passphrase",
				Usage:   "optional BIP-39 passphrase",
				EnvVars: []string{"COOPERATIVA_PASSPHRASE"},
			},
		},
		Action: func(c *cli.Context) error {
			return generate(c.App.Writer, c.Bool("mnemonic"), c.String("recover"), c.String("passphrase"))
		},
	}
}

func generate(out io.Writer, withMnemonic bool, phrase, passphrase string) error {
	if withMnemonic && phrase == "" {
		var err error
		if phrase, err = did.NewMnemonic(); err != nil {
			return err
		}
	}

	var (
		key *did.IssuerKey
		err error
	)
	if phrase != "" {
		key, err = did.KeyFromMnemonic(phrase, passphrase)
	} else {
		key, err = did.GenerateKey()
	}
	if err != nil {
		return err
	}

	fmt.Fprintln(out, "# Semear issuer key. Keep the private key out of version control.")
	if phrase != "" {
		fmt.Fprintf(out, "COOPERATIVA_MNEMONIC=%q\n", phrase)
	}
	fmt.Fprintf(out, "COOPERATIVA_PRIVATE_KEY=%s\n", key.Hex())
	fmt.Fprintf(out, "COOPERATIVA_DID=%s\n", key.DID())
	return nil
}
