// Command payoutctl inserts, reads and updates payouts through dualstore, with the tier
// chosen per merchant from DUALSTORE_DEFAULT_SCHEME / DUALSTORE_TENANT_SCHEMES.
//
//	payoutctl insert  -file payout.json
//	payoutctl get     -merchant m1 -payout p1 [-optional]
//	payoutctl update  -merchant m1 -payout p1 -file update.json
//	payoutctl attempt -merchant m1 -payout p1 -count 2
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/unkn0wn-root/dualstore"
	"github.com/unkn0wn-root/dualstore/payout"
	"github.com/unkn0wn-root/dualstore/payout/postgres"
	"github.com/unkn0wn-root/dualstore/tenant"
)

const usage = "usage: payoutctl <insert|get|update|attempt> [flags]"

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}
	if err := run(os.Args[1], os.Args[2:]); err != nil {
		fmt.Fprintln(os.Stderr, "payoutctl:", err)
		if errors.Is(err, dualstore.ErrNotFound) || errors.Is(err, dualstore.ErrDuplicateEntity) {
			os.Exit(3)
		}
		os.Exit(1)
	}
}

type app struct {
	store   *payout.Store
	schemes tenant.Schemes
	log     *zap.Logger
	out     io.Writer
}

func run(cmd string, args []string) error {
	cfg := loadConfig()

	zl, err := newZap(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer func() { _ = zl.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	schemes, err := tenant.LoadSchemes()
	if err != nil {
		return err
	}

	db, err := postgres.Open(ctx, postgres.Config{DatabaseURL: cfg.DatabaseURL})
	if err != nil {
		return fmt.Errorf("open postgres: %w", err)
	}
	defer db.Close()

	var closers []func()
	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}()

	cache, err := newCache(cfg, db, &closers)
	if err != nil {
		return err
	}
	valueCodec, err := newCodec(cfg.Codec, cfg.MaxValueBytes)
	if err != nil {
		return err
	}
	reg := prometheus.NewRegistry()
	hooks, err := newHooks(reg, &closers)
	if err != nil {
		return err
	}
	storeLog, err := storeLogger(cfg.LogFormat, cfg.LogLevel, zl)
	if err != nil {
		return err
	}
	store, err := payout.NewStore(payout.Config{
		Cache:   cache,
		Durable: postgres.New(db),
		Codec:   valueCodec,
		Logger:  storeLog,
		Hooks:   hooks,
	})
	if err != nil {
		return err
	}
	closers = append(closers, func() {
		cctx, cancel := closeTimeout()
		defer cancel()
		if err := store.Close(cctx); err != nil {
			zl.Warn("cache_close_failed", zap.Error(err))
		}
	})
	if cfg.PrintMetrics {
		closers = append(closers, func() { printMetrics(reg) })
	}

	a := &app{store: store, schemes: schemes, log: zl, out: os.Stdout}
	return a.dispatch(ctx, cmd, args)
}

func (a *app) dispatch(ctx context.Context, cmd string, args []string) error {
	switch cmd {
	case "insert":
		return a.insert(ctx, args)
	case "get":
		return a.get(ctx, args)
	case "update":
		return a.update(ctx, args)
	case "attempt":
		return a.attempt(ctx, args)
	default:
		return errors.New(usage)
	}
}

func (a *app) insert(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("insert", flag.ContinueOnError)
	file := fs.String("file", "-", "payout JSON (- for stdin)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	var n payout.New
	if err := readJSON(*file, &n); err != nil {
		return err
	}
	if err := n.Validate(); err != nil {
		return fmt.Errorf("invalid payout: %w", err)
	}
	scheme := a.schemes.For(n.MerchantID)
	p, err := a.store.Insert(ctx, n, scheme)
	if err != nil {
		return err
	}
	a.log.Info("payout_inserted", zap.String("payout_id", p.PayoutID), zap.Stringer("scheme", scheme))
	return a.print(p)
}

func (a *app) get(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("get", flag.ContinueOnError)
	id := identityFlags(fs)
	optional := fs.Bool("optional", false, "print null instead of failing when absent")
	if err := parseWithIdentity(fs, args, id); err != nil {
		return err
	}
	scheme := a.schemes.For(id.TenantID)
	if *optional {
		p, ok, err := a.store.FindOptionalByIdentity(ctx, *id, scheme)
		if err != nil {
			return err
		}
		if !ok {
			return a.print(nil)
		}
		return a.print(p)
	}
	p, err := a.store.FindByIdentity(ctx, *id, scheme)
	if err != nil {
		return err
	}
	return a.print(p)
}

func (a *app) update(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("update", flag.ContinueOnError)
	id := identityFlags(fs)
	file := fs.String("file", "-", `update JSON {"variant": ..., "data": ...} (- for stdin)`)
	if err := parseWithIdentity(fs, args, id); err != nil {
		return err
	}
	raw, err := readAll(*file)
	if err != nil {
		return err
	}
	u, err := payout.UnmarshalUpdate(raw)
	if err != nil {
		return err
	}
	return a.apply(ctx, *id, u)
}

func (a *app) attempt(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("attempt", flag.ContinueOnError)
	id := identityFlags(fs)
	count := fs.Int("count", 0, "new attempt count")
	if err := parseWithIdentity(fs, args, id); err != nil {
		return err
	}
	if *count < 0 || *count > 1<<15-1 {
		return fmt.Errorf("attempt count %d out of range", *count)
	}
	return a.apply(ctx, *id, payout.AttemptCountUpdate{AttemptCount: int16(*count)})
}

// apply reads the current record through the store and updates it from there.
func (a *app) apply(ctx context.Context, id dualstore.Identity, u payout.Update) error {
	scheme := a.schemes.For(id.TenantID)
	this, err := a.store.FindByIdentity(ctx, id, scheme)
	if err != nil {
		return err
	}
	next, err := a.store.Update(ctx, this, u, scheme)
	if err != nil {
		return err
	}
	a.log.Info("payout_updated", zap.String("payout_id", next.PayoutID), zap.String("variant", u.Variant()))
	return a.print(next)
}

func identityFlags(fs *flag.FlagSet) *dualstore.Identity {
	id := &dualstore.Identity{}
	fs.StringVar(&id.TenantID, "merchant", "", "merchant id")
	fs.StringVar(&id.RecordID, "payout", "", "payout id")
	return id
}

func parseWithIdentity(fs *flag.FlagSet, args []string, id *dualstore.Identity) error {
	if err := fs.Parse(args); err != nil {
		return err
	}
	if id.TenantID == "" || id.RecordID == "" {
		return errors.New("-merchant and -payout are required")
	}
	return nil
}

func (a *app) print(v any) error {
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func readAll(path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(path)
}

func readJSON(path string, v any) error {
	b, err := readAll(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, v)
}

func printMetrics(g prometheus.Gatherer) {
	mfs, err := g.Gather()
	if err != nil {
		return
	}
	for _, mf := range mfs {
		for _, m := range mf.GetMetric() {
			labels := ""
			for _, lp := range m.GetLabel() {
				labels += fmt.Sprintf(" %s=%s", lp.GetName(), lp.GetValue())
			}
			fmt.Fprintf(os.Stderr, "%s%s %g\n", mf.GetName(), labels, m.GetCounter().GetValue())
		}
	}
}
