package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli/v2"

	"semear/internal/credential"
	"semear/internal/did"
	"semear/internal/identity"
	jwttoken "semear/internal/jwt_token"
	"semear/internal/platform/config"
	"semear/internal/platform/logger"
	"semear/internal/wallet"
	"semear/internal/wallet/store"
	"semear/pkg/platform/audit/publisher"
	"semear/pkg/platform/audit/store/logsink"
	strutil "semear/pkg/platform/strings"
)

const shortID = 12

var errAmbiguousID = errors.New("id prefix matches more than one receipt")

// session is an opened wallet plus the resources to release afterwards.
type session struct {
	wallet *wallet.Wallet
	close  func() error
}

func open(c *cli.Context) (*session, error) {
	owner, err := identity.Parse(c.String("cpf"))
	if err != nil {
		return nil, fmt.Errorf("--cpf: %w", err)
	}
	file, err := config.ReadRotationFile(c.String("rotation-config"))
	if err != nil {
		return nil, err
	}
	rot, err := file.Config()
	if err != nil {
		return nil, err
	}

	var trusted []did.DID
	for _, raw := range strutil.Unique(append(c.StringSlice("trusted-issuer"), file.TrustedIssuers...)) {
		d := did.DID(raw)
		if _, err := did.ParseIssuerDID(d); err != nil {
			return nil, fmt.Errorf("trusted issuer %q: %w", raw, err)
		}
		trusted = append(trusted, d)
	}
	var engineOpts []jwttoken.Option
	if len(trusted) > 0 {
		engineOpts = append(engineOpts, jwttoken.WithTrustedIssuers(trusted...))
	}
	verifier, err := credential.NewVerifier(jwttoken.NewEngine(engineOpts...), rot)
	if err != nil {
		return nil, err
	}

	db, err := store.OpenLevelDB(c.String("db"))
	if err != nil {
		return nil, err
	}

	log := logger.NewWithWriter(c.App.ErrWriter, c.String("log-level"))
	if len(trusted) == 0 {
		log.Warn("no trusted issuers pinned, any did:key issuer is accepted")
	}
	w, err := wallet.New(owner, verifier, db,
		wallet.WithLogger(log),
		wallet.WithAuditPublisher(publisher.NewPublisher(logsink.New(log))),
	)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &session{wallet: w, close: db.Close}, nil
}

func withWallet(c *cli.Context, fn func(ctx context.Context, w *wallet.Wallet) error) error {
	s, err := open(c)
	if err != nil {
		return err
	}
	defer s.close()
	return fn(c.Context, s.wallet)
}

func firstArg(c *cli.Context, what string) (string, error) {
	if c.NArg() != 1 {
		return "", fmt.Errorf("expected exactly one %s", what)
	}
	return c.Args().First(), nil
}

func importAction(c *cli.Context) error {
	qr, err := firstArg(c, "QR payload")
	if err != nil {
		return err
	}
	return withWallet(c, func(ctx context.Context, w *wallet.Wallet) error {
		r, err := w.Import(ctx, qr)
		if err != nil {
			return explain(err)
		}
		fmt.Fprintf(c.App.Writer, "saved %s\n", r.ID[:shortID])
		printData(c, r.Data)
		return nil
	})
}

func checkAction(c *cli.Context) error {
	qr, err := firstArg(c, "QR payload")
	if err != nil {
		return err
	}
	return withWallet(c, func(ctx context.Context, w *wallet.Wallet) error {
		_, data, err := w.Check(ctx, qr)
		if err != nil {
			return explain(err)
		}
		fmt.Fprintln(c.App.Writer, "valid")
		printData(c, *data)
		return nil
	})
}

func listAction(c *cli.Context) error {
	return withWallet(c, func(ctx context.Context, w *wallet.Wallet) error {
		receipts, err := w.List(ctx)
		if err != nil {
			return err
		}
		if len(receipts) == 0 {
			fmt.Fprintln(c.App.Writer, "no receipts saved")
			return nil
		}
		now := time.Now()
		tw := tabwriter.NewWriter(c.App.Writer, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tPRODUCT\tQUANTITY\tDELIVERED\tCOOPERATIVE\tSTATUS")
		for _, r := range receipts {
			status := "valid"
			if r.Expired(now) {
				status = "expired"
			}
			fmt.Fprintf(tw, "%s\t%s\t%g %s\t%s\t%s\t%s\n",
				r.ID[:shortID],
				r.Data.Delivery.Product,
				r.Data.Delivery.Quantity, r.Data.Delivery.Unit,
				r.Data.Delivery.Date.Format(time.DateOnly),
				r.Data.Cooperative.Name,
				status,
			)
		}
		return tw.Flush()
	})
}

func showAction(c *cli.Context) error {
	prefix, err := firstArg(c, "receipt id")
	if err != nil {
		return err
	}
	return withWallet(c, func(ctx context.Context, w *wallet.Wallet) error {
		r, err := find(ctx, w, prefix)
		if err != nil {
			return err
		}
		if c.Bool("token") {
			fmt.Fprintln(c.App.Writer, r.Token)
			return nil
		}
		fmt.Fprintf(c.App.Writer, "id:          %s\n", r.ID)
		fmt.Fprintf(c.App.Writer, "saved:       %s\n", r.SavedAt.Format(time.RFC3339))
		printData(c, r.Data)
		return nil
	})
}

func deleteAction(c *cli.Context) error {
	prefix, err := firstArg(c, "receipt id")
	if err != nil {
		return err
	}
	return withWallet(c, func(ctx context.Context, w *wallet.Wallet) error {
		r, err := find(ctx, w, prefix)
		if err != nil {
			return err
		}
		if err := w.Delete(ctx, r.ID); err != nil {
			return err
		}
		fmt.Fprintf(c.App.Writer, "deleted %s\n", r.ID[:shortID])
		return nil
	})
}

func didsAction(c *cli.Context) error {
	return withWallet(c, func(_ context.Context, w *wallet.Wallet) error {
		for i, d := range w.DIDs(time.Now()) {
			marker := ""
			if i == 0 {
				marker = " (current)"
			}
			fmt.Fprintf(c.App.Writer, "%s%s\n", d, marker)
		}
		return nil
	})
}

// find resolves a receipt by full ID or unique prefix.
func find(ctx context.Context, w *wallet.Wallet, prefix string) (wallet.Receipt, error) {
	prefix = strings.ToLower(strings.TrimSpace(prefix))
	if r, err := w.Get(ctx, prefix); err == nil {
		return r, nil
	}
	receipts, err := w.List(ctx)
	if err != nil {
		return wallet.Receipt{}, err
	}
	var match *wallet.Receipt
	for i := range receipts {
		if !strings.HasPrefix(receipts[i].ID, prefix) {
			continue
		}
		if match != nil {
			return wallet.Receipt{}, errAmbiguousID
		}
		match = &receipts[i]
	}
	if match == nil || prefix == "" {
		return wallet.Receipt{}, wallet.ErrNotFound
	}
	return *match, nil
}

func printData(c *cli.Context, d credential.Data) {
	out := c.App.Writer
	fmt.Fprintf(out, "credential:  %s\n", d.ID)
	fmt.Fprintf(out, "producer:    %s\n", d.Producer.Name)
	fmt.Fprintf(out, "delivery:    %g %s of %s on %s\n",
		d.Delivery.Quantity, d.Delivery.Unit, d.Delivery.Product, d.Delivery.Date.Format(time.DateOnly))
	fmt.Fprintf(out, "cooperative: %s (%s)\n", d.Cooperative.Name, d.Issuer)
	fmt.Fprintf(out, "expires:     %s\n", d.ExpiresAt.Format(time.DateOnly))
}

// explain prefixes verification failures with the message shown to producers.
func explain(err error) error {
	if reason := credential.Reason(err); reason != "error" && reason != "valid" {
		return fmt.Errorf("%s: %w", credential.UserMessage(err), err)
	}
	return err
}
