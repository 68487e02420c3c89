// regadmin is the operator CLI for reviewing registrations. It talks to the
// server's /ops API with the shared admin token.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/pflag"
)

const usage = `regadmin reviews NCC registrations through the operator API.

Usage:
  regadmin [flags] list [--status S] [--payment-status S] [--limit N]
  regadmin [flags] show <userID>
  regadmin [flags] status <registrationID> <pending|approved|rejected>
  regadmin [flags] payment <registrationID> <verification_pending|approved|rejected>
  regadmin [flags] role <userID> <user|admin>
  regadmin [flags] history <registrationID>

Flags:
`

// errUsage marks argument mistakes so main can print the usage text.
var errUsage = errors.New("invalid arguments")

func main() {
	if err := run(context.Background(), os.Args[1:], os.Stdout); err != nil {
		if errors.Is(err, errUsage) {
			fmt.Fprintf(os.Stderr, "error: %v\nrun 'regadmin --help' for usage\n", err)
			os.Exit(2)
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, out io.Writer) error {
	flags := pflag.NewFlagSet("regadmin", pflag.ContinueOnError)
	flags.SetInterspersed(false)
	serverURL := flags.String("server", envOr("NCC_URL", "http://localhost:8080"), "server base URL (env NCC_URL)")
	token := flags.String("token", os.Getenv("ADMIN_TOKEN"), "operator token (env ADMIN_TOKEN)")
	timeout := flags.Duration("timeout", 15*time.Second, "request timeout")
	asJSON := flags.Bool("json", false, "print raw JSON")
	flags.Usage = func() {
		fmt.Fprint(os.Stderr, usage)
		flags.PrintDefaults()
	}
	if err := flags.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	rest := flags.Args()
	if len(rest) == 0 {
		return fmt.Errorf("%w: missing command", errUsage)
	}
	if *token == "" {
		return fmt.Errorf("%w: --token or ADMIN_TOKEN is required", errUsage)
	}

	c := newClient(*serverURL, *token, *timeout)
	p := printer{out: out, json: *asJSON}
	cmd, cmdArgs := rest[0], rest[1:]

	switch cmd {
	case "list":
		return runList(ctx, c, p, cmdArgs)
	case "show":
		if len(cmdArgs) != 1 {
			return fmt.Errorf("%w: show takes <userID>", errUsage)
		}
		raw, err := c.user(ctx, cmdArgs[0])
		if err != nil {
			return err
		}
		return p.raw(raw)
	case "status", "payment", "role":
		if len(cmdArgs) != 2 {
			return fmt.Errorf("%w: %s takes <id> <value>", errUsage, cmd)
		}
		var t *transition
		var err error
		switch cmd {
		case "status":
			t, err = c.setStatus(ctx, cmdArgs[0], cmdArgs[1])
		case "payment":
			t, err = c.setPaymentStatus(ctx, cmdArgs[0], cmdArgs[1])
		default:
			t, err = c.setRole(ctx, cmdArgs[0], cmdArgs[1])
		}
		if err != nil {
			return err
		}
		return p.transition(t)
	case "history":
		if len(cmdArgs) != 1 {
			return fmt.Errorf("%w: history takes <registrationID>", errUsage)
		}
		entries, err := c.history(ctx, cmdArgs[0])
		if err != nil {
			return err
		}
		return p.history(entries)
	}
	return fmt.Errorf("%w: unknown command %q", errUsage, cmd)
}

func runList(ctx context.Context, c *client, p printer, args []string) error {
	flags := pflag.NewFlagSet("list", pflag.ContinueOnError)
	var f listFilter
	flags.StringVar(&f.Status, "status", "", "filter by registration status")
	flags.StringVar(&f.PaymentStatus, "payment-status", "", "filter by payment status")
	flags.IntVar(&f.Limit, "limit", 0, "maximum rows (server default 100)")
	if err := flags.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	regs, err := c.list(ctx, f)
	if err != nil {
		return err
	}
	return p.registrations(regs)
}

type printer struct {
	out  io.Writer
	json bool
}

func (p printer) encode(v any) error {
	enc := json.NewEncoder(p.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (p printer) raw(msg json.RawMessage) error {
	var v any
	if err := json.Unmarshal(msg, &v); err != nil {
		return err
	}
	return p.encode(v)
}

func (p printer) registrations(regs []registration) error {
	if p.json {
		return p.encode(regs)
	}
	tw := tabwriter.NewWriter(p.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "REGISTRATION\tNAME\tEMAIL\tSTATUS\tPAYMENT\tSUBMITTED")
	for _, r := range regs {
		submitted := "-"
		if r.SubmittedAt != nil {
			submitted = r.SubmittedAt.Format(time.DateTime)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			r.RegistrationID, r.PersonalInfo.FullName, r.PersonalInfo.Email, r.Status, r.PaymentStatus, submitted)
	}
	return tw.Flush()
}

func (p printer) transition(t *transition) error {
	if p.json {
		return p.encode(t)
	}
	if !t.Changed {
		_, err := fmt.Fprintf(p.out, "%s %s already %s\n", t.RegistrationID, t.Axis, t.To)
		return err
	}
	_, err := fmt.Fprintf(p.out, "%s %s: %s -> %s\n", t.RegistrationID, t.Axis, t.From, t.To)
	return err
}

func (p printer) history(entries []historyEntry) error {
	if p.json {
		return p.encode(entries)
	}
	tw := tabwriter.NewWriter(p.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tACTION\tFROM\tTO\tACTOR")
	for _, e := range entries {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", e.Timestamp.Format(time.DateTime), e.Action, e.From, e.To, e.ActorID)
	}
	return tw.Flush()
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
