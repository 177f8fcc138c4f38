package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/spf13/pflag"

	"hermes/internal/arbitrage"
	"hermes/internal/cache"
	"hermes/internal/config"
	"hermes/internal/database"
	"hermes/internal/exchange"
	"hermes/internal/housekeeping"
	"hermes/internal/logging"
	"hermes/internal/market"
	"hermes/internal/model"
	"hermes/internal/runner"
)

// botNamespace derives the default bot user id when none is configured.
var botNamespace = uuid.MustParse("6f1c3c4e-3b55-4c8e-9a59-5c1f2e7c9d10")

type options struct {
	configPath    string
	riskLevel     float64
	minConfidence float64
	interval      int
	addCurrencies []string
	funds         []string
	dryRun        bool
}

func main() {
	var opts options
	flags := pflag.NewFlagSet("hermes", pflag.ExitOnError)
	flags.StringVar(&opts.configPath, "config", ".", "directory containing config.yaml")
	flags.Float64Var(&opts.riskLevel, "risk-level", 0, "risk tolerance (0-1)")
	flags.Float64Var(&opts.minConfidence, "min-confidence", 0, "minimum confidence score (0-1)")
	flags.IntVar(&opts.interval, "interval", 0, "seconds between iterations")
	flags.StringArrayVar(&opts.addCurrencies, "add-currency", nil, "add a currency to the selection (repeatable)")
	flags.StringArrayVar(&opts.funds, "fund", nil, "credit the bot user, e.g. USD=1000 (repeatable)")
	flags.BoolVar(&opts.dryRun, "dry-run", false, "scan and log opportunities without executing them")
	_ = flags.Parse(os.Args[1:])

	cfg, err := config.LoadConfig(opts.configPath)
	if err != nil {
		log.Fatalf("cannot load config: %v", err)
	}
	logger := logging.New(cfg.Log.Level)

	if err := run(logger, cfg, opts, flags); err != nil {
		logger.Error("hermes exited with error", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger, cfg config.Config, opts options, flags *pflag.FlagSet) error {
	// baseCtx outlives the shutdown signal so an in-flight trade can commit.
	baseCtx, cancelBase := context.WithCancel(context.Background())
	defer cancelBase()
	sigCtx, stopSignals := signal.NotifyContext(baseCtx, os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	userID, err := botUserID(cfg.Bot.UserID)
	if err != nil {
		return err
	}

	repo, err := database.NewPostgresRepository(sigCtx, cfg.Database.ConnString(), cfg.Database.MaxConns)
	if err != nil {
		return err
	}
	defer repo.Close()
	repo.Defaults = &model.BotConfig{
		RiskTolerance:        cfg.Bot.RiskTolerance,
		MinConfidenceScore:   cfg.Bot.MinConfidenceScore,
		TradeSizePercentage:  cfg.Bot.TradeSizePercentage,
		SelectedCurrencies:   model.ParseCurrencies(cfg.Bot.SelectedCurrencies),
		CheckIntervalSeconds: cfg.Bot.CheckIntervalSeconds,
	}
	if err := repo.Migrate(sigCtx); err != nil {
		return err
	}
	logger.Info("Database ready")

	var prices database.PriceStore = repo
	if cfg.Redis.Addr != "" {
		rdb, err := cache.NewRedisClient(sigCtx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			logger.Warn("Redis unavailable, reading prices from the database", "addr", cfg.Redis.Addr, "error", err)
		} else {
			defer rdb.Close()
			prices = cache.NewRedisPriceStore(logger, rdb, repo, cfg.Redis.TTL)
			logger.Info("Latest-price cache enabled", "addr", cfg.Redis.Addr)
		}
	}

	if err := fund(sigCtx, logger, repo, userID, opts.funds); err != nil {
		return err
	}
	if err := applyOverrides(sigCtx, repo, opts, flags); err != nil {
		return err
	}

	client, err := exchange.NewClient(cfg.Upstream.Name, logger, cfg.Upstream)
	if err != nil {
		return err
	}
	if s, ok := client.(exchange.Streamer); ok {
		go func() {
			if err := s.Run(baseCtx); err != nil {
				logger.Error("Exchange stream stopped", "exchange", client.GetName(), "error", err)
			}
		}()
	}
	var placer exchange.OrderPlacer
	if cfg.Arbitrage.PlaceOrders {
		placer = client
	}

	synth := market.NewRandomSpreadSynthesizer(cfg.Ingest.MinShift, cfg.Ingest.MaxShift, nil)
	ingestor := market.NewIngestor(logger, client, prices, synth, cfg.Ingest)
	scanner := arbitrage.NewScanner(logger, cfg.Arbitrage)
	executor := arbitrage.NewExecutor(logger, repo, placer, userID)
	engine := arbitrage.NewArbitrageEngine(logger, repo, prices, scanner, executor, userID)
	engine.DryRun = opts.dryRun

	janitor, err := housekeeping.NewJanitor(baseCtx, logger, repo, cfg.Retention.Schedule, cfg.Retention.KeepTrades)
	if err != nil {
		return err
	}
	janitor.Start()
	defer janitor.Stop()

	bot := runner.New(logger, repo, ingestor, engine, cfg.Runner)
	bot.Start(baseCtx)
	logger.Info("Bot started", "user", userID, "exchange", client.GetName(), "dry_run", opts.dryRun)

	select {
	case <-sigCtx.Done():
		logger.Info("Shutdown signal received")
	case <-bot.Done():
		logger.Warn("Bot loop exited unexpectedly")
	}

	bot.Stop()
	select {
	case <-bot.Done():
	case <-time.After(cfg.Runner.ShutdownTimeout):
		logger.Warn("Bot loop did not stop in time", "timeout", cfg.Runner.ShutdownTimeout)
	}

	stopCtx, cancel := context.WithTimeout(baseCtx, 5*time.Second)
	defer cancel()
	if err := setActive(stopCtx, repo, false); err != nil {
		logger.Warn("Could not mark bot inactive", "error", err)
	}
	logger.Info("Bot stopped")
	return nil
}

func botUserID(configured string) (uuid.UUID, error) {
	if configured == "" {
		return uuid.NewSHA1(botNamespace, []byte("hermes-bot")), nil
	}
	id, err := uuid.Parse(configured)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid bot.user_id %q: %w", configured, err)
	}
	return id, nil
}

func fund(ctx context.Context, logger *slog.Logger, balances database.BalanceStore, userID uuid.UUID, funds []string) error {
	for _, f := range funds {
		currency, amount, err := parseFund(f)
		if err != nil {
			return err
		}
		if err := balances.Credit(ctx, userID, currency, amount); err != nil {
			return err
		}
		logger.Info("Funded bot user", "currency", currency, "amount", amount)
	}
	return nil
}

func parseFund(s string) (string, decimal.Decimal, error) {
	cur, amt, ok := strings.Cut(s, "=")
	cur = strings.ToUpper(strings.TrimSpace(cur))
	if !ok || cur == "" {
		return "", decimal.Zero, fmt.Errorf("invalid --fund %q, want CUR=AMOUNT", s)
	}
	amount, err := decimal.NewFromString(strings.TrimSpace(amt))
	if err != nil {
		return "", decimal.Zero, fmt.Errorf("invalid --fund amount %q: %w", s, err)
	}
	if !amount.IsPositive() {
		return "", decimal.Zero, errors.New("--fund amount must be positive")
	}
	return cur, amount, nil
}

// applyOverrides writes the CLI settings into the bot_config row and
// activates the bot.
func applyOverrides(ctx context.Context, store database.ConfigStore, opts options, flags *pflag.FlagSet) error {
	bc, err := store.LoadBotConfig(ctx)
	if err != nil {
		return err
	}
	if flags.Changed("risk-level") {
		bc.RiskTolerance = opts.riskLevel
	}
	if flags.Changed("min-confidence") {
		bc.MinConfidenceScore = opts.minConfidence
	}
	if flags.Changed("interval") {
		if opts.interval <= 0 {
			return fmt.Errorf("--interval must be positive, got %d", opts.interval)
		}
		bc.CheckIntervalSeconds = opts.interval
	}
	if len(opts.addCurrencies) > 0 {
		all := append(append([]string{}, bc.SelectedCurrencies...), opts.addCurrencies...)
		bc.SelectedCurrencies = model.ParseCurrencies(strings.Join(all, ","))
	}
	bc.IsActive = true
	return store.SaveBotConfig(ctx, bc)
}

func setActive(ctx context.Context, store database.ConfigStore, active bool) error {
	bc, err := store.LoadBotConfig(ctx)
	if err != nil {
		return err
	}
	bc.IsActive = active
	return store.SaveBotConfig(ctx, bc)
}
