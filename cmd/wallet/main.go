// Command wallet is the producer's command-line wallet. It verifies scanned
// delivery receipts against the producer's CPF and keeps them in a local
// LevelDB database.
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/urfave/cli/v2"
)

func main() {
	if err := newApp(os.Stdout, os.Stderr).Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "wallet:", err)
		os.Exit(1)
	}
}

var globalFlags = []cli.Flag{
	&cli.StringFlag{
		Name:     "cpf",
		Usage:    "CPF of the wallet owner",
		EnvVars:  []string{"WALLET_CPF"},
		Required: true,
	},
	&cli.StringFlag{
		Name:    "db",
		Usage:   "directory of the wallet database",
		EnvVars: []string{"WALLET_DB"},
		Value:   "semear-wallet",
	},
	&cli.StringFlag{
		Name:    "rotation-config",
		Usage:   "rotation YAML shared with the cooperative",
		EnvVars: []string{"ROTATION_CONFIG"},
	},
	&cli.StringSliceFlag{
		Name:    "trusted-issuer",
		Usage:   "accept credentials only from these cooperative DIDs, in addition to trusted_issuers in the rotation file",
		EnvVars: []string{"TRUSTED_ISSUERS"},
	},
	&cli.StringFlag{
		Name:    "log-level",
		Usage:   "debug, info, warn or error",
		EnvVars: []string{"LOG_LEVEL"},
		Value:   "warn",
	},
}

var cmds = cli.Commands{
	{
		Name:      "import",
		Aliases:   []string{"i"},
		Usage:     "verify a scanned QR payload and save it",
		ArgsUsage: "<url|token>",
		Action:    importAction,
	},
	{
		Name:      "check",
		Aliases:   []string{"c"},
		Usage:     "verify a scanned QR payload without saving it",
		ArgsUsage: "<url|token>",
		Action:    checkAction,
	},
	{
		Name:    "list",
		Aliases: []string{"ls"},
		Usage:   "list saved receipts, newest first",
		Action:  listAction,
	},
	{
		Name:      "show",
		Usage:     "print one receipt",
		ArgsUsage: "<id-prefix>",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "token", Usage: "print only the signed token"},
		},
		Action: showAction,
	},
	{
		Name:      "delete",
		Aliases:   []string{"rm"},
		Usage:     "remove a receipt",
		ArgsUsage: "<id-prefix>",
		Action:    deleteAction,
	},
	{
		Name:   "dids",
		Usage:  "print the owner's DIDs in the verification window",
		Action: didsAction,
	},
}

func newApp(out, errOut io.Writer) *cli.App {
	return &cli.App{
		Name:      "wallet",
		Usage:     "keep verified Semear delivery receipts",
		Writer:    out,
		ErrWriter: errOut,
		Flags:     globalFlags,
		Commands:  cmds,
	}
}
