// Command ehctl is the operator CLI: it inspects and adjusts entitlement and
// reward records directly in the configured store.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/and161185/earn-hire/internal/auth"
	"github.com/and161185/earn-hire/internal/bootstrap"
	"github.com/and161185/earn-hire/internal/config"
	"github.com/and161185/earn-hire/internal/limiter"
	"github.com/and161185/earn-hire/internal/localstore"
	"github.com/and161185/earn-hire/internal/migrate"
	"github.com/and161185/earn-hire/internal/model"
	"github.com/and161185/earn-hire/internal/service"
	"github.com/and161185/earn-hire/internal/wallet"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

var errUsage = errors.New("usage")

// app holds the services commands operate on.
type app struct {
	cfg     config.Config
	credits *service.CreditService
	rewards *service.RewardService
	billing *service.BillingService
	migrate *service.MigrationService
	limiter *limiter.Limiter
	out     io.Writer
}

func newApp(cfg config.Config, b *bootstrap.Backends, log *zap.Logger, out io.Writer) (*app, error) {
	entRepo, rewRepo, err := b.Repositories(cfg)
	if err != nil {
		return nil, err
	}
	lc := limiter.DefaultConfig()
	limStore, _, err := b.LimiterStore(cfg, lc)
	if err != nil {
		return nil, err
	}
	credits := service.NewCreditService(entRepo, rewRepo, nil)
	return &app{
		cfg:     cfg,
		credits: credits,
		rewards: service.NewRewardService(rewRepo, entRepo, nil),
		billing: service.NewBillingService(credits, cfg.StripeWebhookSecret, log),
		migrate: service.NewMigrationService(entRepo, rewRepo, log, nil),
		limiter: limiter.New(limStore, lc, log),
		out:     out,
	}, nil
}

func usage() {
	fmt.Fprintf(os.Stderr, `ehctl
Usage:
  ehctl [server flags, e.g. -store postgres -dsn ...] <cmd> [args]

Commands:
  version
  status        -user <id>                      (entitlements, counts, reward status)
  set-plan      -user <id> -plan starter|pro
  grant         -user <id> -product <product>   (plans overwrite, boosts add)
  set-region    -user <id> -country <ISO code>
  migrate       -user <id> -file <json>         (key/value map of local artifacts, - for stdin)
  limiter       -wallet <address> [-reset]
  token         -user <id> [-ttl 1h]
  schema-version
`)
}

// main dispatches subcommands against the configured store.
func main() {
	cfg, err := config.Parse(os.Args[1:])
	if err != nil {
		os.Exit(2)
	}
	if len(cfg.Args) < 1 {
		usage()
		os.Exit(2)
	}

	log, _ := zap.NewDevelopment()
	defer func() { _ = log.Sync() }()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cmd, args := cfg.Args[0], cfg.Args[1:]
	switch cmd {
	case "version":
		fmt.Printf("ehctl %s (%s)\n", version, buildDate)
		return
	case "schema-version":
		v, err := migrate.Version(ctx, cfg.DSN)
		if err != nil {
			fail(err)
		}
		fmt.Println(v)
		return
	}

	b, err := bootstrap.Open(ctx, cfg, log)
	if err != nil {
		fail(err)
	}
	defer b.Close()

	a, err := newApp(cfg, b, log, os.Stdout)
	if err != nil {
		fail(err)
	}
	if err := a.run(ctx, cmd, args); err != nil {
		if errors.Is(err, errUsage) {
			usage()
			os.Exit(2)
		}
		fail(err)
	}
}

func (a *app) run(ctx context.Context, cmd string, args []string) error {
	fs := flag.NewFlagSet(cmd, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	user := fs.String("user", "", "user id")

	switch cmd {
	case "status":
		if err := parse(fs, args, user); err != nil {
			return err
		}
		return a.status(ctx, *user)

	case "set-plan":
		plan := fs.String("plan", "", "starter or pro")
		if err := parse(fs, args, user); err != nil {
			return err
		}
		p, err := model.ParsePlan(*plan)
		if err != nil {
			return err
		}
		if err := a.credits.SetPlan(ctx, p, *user); err != nil {
			return err
		}
		return a.status(ctx, *user)

	case "grant":
		product := fs.String("product", "", "product identifier")
		if err := parse(fs, args, user); err != nil {
			return err
		}
		p, err := model.ParseProduct(*product)
		if err != nil {
			return err
		}
		if err := a.billing.Fulfil(ctx, *user, p); err != nil {
			return err
		}
		return a.status(ctx, *user)

	case "set-region":
		country := fs.String("country", "", "ISO country code")
		if err := parse(fs, args, user); err != nil {
			return err
		}
		if *country == "" {
			return errUsage
		}
		if err := a.credits.SetRegion(ctx, *country, *user); err != nil {
			return err
		}
		return a.status(ctx, *user)

	case "migrate":
		file := fs.String("file", "", "JSON object of local artifacts")
		if err := parse(fs, args, user); err != nil {
			return err
		}
		raw, err := readAll(*file)
		if err != nil {
			return err
		}
		values := map[string]string{}
		if err := json.Unmarshal(raw, &values); err != nil {
			return fmt.Errorf("decode %s: %w", *file, err)
		}
		res, err := a.migrate.Run(ctx, *user, localstore.NewMemory(values))
		if err != nil {
			return err
		}
		printJSON(a.out, res)
		return nil

	case "limiter":
		addr := fs.String("wallet", "", "wallet address")
		reset := fs.Bool("reset", false, "clear violations and captcha")
		if err := fs.Parse(args); err != nil || *addr == "" {
			return errUsage
		}
		w, err := wallet.Normalize(*addr)
		if err != nil {
			return err
		}
		if *reset {
			if err := a.limiter.ResetViolations(ctx, w.Value); err != nil {
				return err
			}
		}
		rec, ok, err := a.limiter.Inspect(ctx, w.Value)
		if err != nil {
			return err
		}
		printJSON(a.out, map[string]any{"wallet": w.Value, "found": ok, "record": rec})
		return nil

	case "token":
		ttl := fs.Duration("ttl", time.Hour, "token lifetime")
		if err := parse(fs, args, user); err != nil {
			return err
		}
		if a.cfg.JWTKey == "" {
			return errors.New("missing jwt signing key (-jwt-key / EH_JWT_KEY)")
		}
		tok, exp, err := auth.NewTokens([]byte(a.cfg.JWTKey)).Issue(*user, *ttl)
		if err != nil {
			return err
		}
		printJSON(a.out, map[string]any{"access_token": tok, "expires_at": exp})
		return nil
	}
	return errUsage
}

func (a *app) status(ctx context.Context, userID string) error {
	rec, err := a.credits.CheckAndResetDaily(ctx, userID)
	if err != nil {
		return err
	}
	counts, err := a.credits.RemainingCounts(ctx, userID)
	if err != nil {
		return err
	}
	st, err := a.rewards.GetStatus(ctx, userID)
	if err != nil {
		return err
	}
	printJSON(a.out, map[string]any{
		"entitlements":  rec,
		"remaining":     counts,
		"rewards":       st,
		"timeRemaining": st.TimeRemaining.String(),
	})
	return nil
}

// ---- utils ----

func parse(fs *flag.FlagSet, args []string, user *string) error {
	if err := fs.Parse(args); err != nil || *user == "" {
		return errUsage
	}
	return nil
}

func readAll(p string) ([]byte, error) {
	if p == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(p)
}

func printJSON(w io.Writer, v any) {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

func fail(err error) {
	fmt.Fprintln(os.Stderr, "error:", err)
	os.Exit(1)
}
