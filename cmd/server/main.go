// Package main is the entry point for the stablesats dealer: it prices
// BTC/USD synthetic dollar conversions off a blended multi-venue feed and
// hedges the resulting liability with a derivatives short.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"

	"github.com/stablesats/dealer/internal/bus"
	"github.com/stablesats/dealer/internal/config"
	"github.com/stablesats/dealer/internal/database"
	"github.com/stablesats/dealer/internal/exchange"
	"github.com/stablesats/dealer/internal/feeds"
	"github.com/stablesats/dealer/internal/hedging"
	"github.com/stablesats/dealer/internal/ledger"
	"github.com/stablesats/dealer/internal/pricecache"
	"github.com/stablesats/dealer/internal/pricemixer"
	"github.com/stablesats/dealer/internal/quote"
	"github.com/stablesats/dealer/internal/reliability"
	"github.com/stablesats/dealer/internal/scheduler"
	"github.com/stablesats/dealer/internal/server"
	"github.com/stablesats/dealer/pkg/logger"
)

// metricsJob wraps a scheduler.Job, recording tick/error counts onto the
// server's Prometheus registry without the wrapped job (the hedging loop)
// needing to import the server package.
type metricsJob struct {
	inner   scheduler.Job
	metrics *server.Metrics
}

func (j metricsJob) Name() string { return j.inner.Name() }

func (j metricsJob) Run() error {
	err := j.inner.Run()
	j.metrics.HedgeTicksTotal.Inc()
	if err != nil {
		j.metrics.HedgeErrorsTotal.Inc()
	}
	return err
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fallbackLog := logger.New(logger.Config{Level: "info", Pretty: true})
		fallbackLog.Fatal().Err(err).Msg("failed to load configuration")
	}

	log := logger.New(logger.Config{Level: cfg.LogLevel, Pretty: cfg.DevMode})
	log.Info().Msg("starting stablesats dealer")

	ledgerDB, err := database.New(database.Config{Path: cfg.LedgerDBPath, Profile: database.ProfileLedger, Name: "ledger"})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open ledger database")
	}
	defer ledgerDB.Close()

	quoteDB, err := database.New(database.Config{Path: cfg.QuoteDBPath, Profile: database.ProfileCache, Name: "quotes"})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open quote database")
	}
	defer quoteDB.Close()

	ledg := ledger.New(ledgerDB, log)
	if err := ledg.Init(context.Background()); err != nil {
		log.Fatal().Err(err).Msg("failed to initialize ledger schema")
	}

	priceBus := bus.New(time.Duration(cfg.BusWindowSeconds) * time.Second)

	staleAfter := time.Duration(cfg.CacheStaleAfterSeconds) * time.Second
	okexBook := pricecache.NewOrderBookCache(staleAfter)
	bitfinexTick := pricecache.NewTickCache(staleAfter)

	okexFeed := feeds.NewOkexFeed(priceBus, log)
	bitfinexFeed := feeds.NewBitfinexFeed(priceBus, log)
	okexFeed.Start()
	bitfinexFeed.Start()
	defer okexFeed.Stop()
	defer bitfinexFeed.Stop()

	feedCtx, cancelFeeds := context.WithCancel(context.Background())
	defer cancelFeeds()
	go feeds.SubscribeOkexOrderBook(feedCtx, priceBus.Subscribe(), okexBook, log)
	go feeds.SubscribeBitfinexTick(feedCtx, priceBus.Subscribe(), bitfinexTick, log)

	buyMixer := pricemixer.New()
	sellMixer := pricemixer.New()
	for _, mixer := range []*pricemixer.Mixer{buyMixer, sellMixer} {
		if err := mixer.AddProvider(feeds.OkexExchangeID, quote.NewBookProvider(feeds.OkexExchangeID, okexBook), cfg.OkexWeight); err != nil {
			log.Fatal().Err(err).Msg("failed to register okex price provider")
		}
		if err := mixer.AddProvider(feeds.BitfinexExchangeID, quote.NewTickProvider(feeds.BitfinexExchangeID, bitfinexTick), cfg.BitfinexWeight); err != nil {
			log.Fatal().Err(err).Msg("failed to register bitfinex price provider")
		}
	}

	exchangeClient := exchange.NewClient(exchange.Config{
		APIKey:     cfg.OkexAPIKey,
		APISecret:  cfg.OkexAPISecret,
		Passphrase: cfg.OkexPassphrase,
		BaseURL:    cfg.OkexBaseURL,
	}, log)

	hedgeMixer := pricemixer.New()
	if err := hedgeMixer.AddProvider(feeds.OkexExchangeID, quote.NewBookProvider(feeds.OkexExchangeID, okexBook), 1.0); err != nil {
		log.Fatal().Err(err).Msg("failed to register hedging price provider")
	}

	hedgeLoop := hedging.New(hedging.Config{
		Ledger:                ledg,
		Exchange:              exchangeClient,
		Mixer:                 hedgeMixer,
		InstID:                cfg.OkexInstID,
		ContractSizeUSD:       cfg.HedgeContractSizeUSD,
		DeadBandUSD:           cfg.HedgeDeadBandUSD,
		TradingBalanceLowBTC:  cfg.HedgeTradingBalanceLowBTC,
		TradingBalanceHighBTC: cfg.HedgeTradingBalanceHiBTC,
		FundingWithdrawalBTC:  cfg.HedgeFundingWithdrawalBTC,
		WithdrawalTargetBTC:   cfg.HedgeWithdrawalTargetBTC,
		WithdrawalAddress:     cfg.HedgeWithdrawalAddress,
		WithdrawalFeeBTC:      cfg.HedgeWithdrawalFeeBTC,
		Schedule:              cfg.HedgeSchedule,
	}, log)

	quoteSvc := quote.New(quote.Config{
		DB:          quoteDB,
		Ledger:      ledg,
		BuyMixer:    buyMixer,
		SellMixer:   sellMixer,
		Fee: quote.NewFeeCalculator(quote.FeeConfig{
			BaseRate:      cfg.FeeBaseRate,
			ImmediateRate: cfg.FeeImmediateRate,
			DelayedRate:   cfg.FeeDelayedRate,
		}),
		ExpiryAfter:   time.Duration(cfg.QuoteExpirySeconds) * time.Second,
		HedgeNotifier: hedgeLoop,
	}, log)
	if err := quoteSvc.Init(); err != nil {
		log.Fatal().Err(err).Msg("failed to initialize quote schema")
	}

	metrics := server.NewMetrics()

	metricsCtx, cancelMetrics := context.WithCancel(context.Background())
	defer cancelMetrics()
	go pollMetrics(metricsCtx, priceBus, okexBook, bitfinexTick, metrics)

	sched := scheduler.New(log)
	if err := sched.AddJob(cfg.HedgeSchedule, metricsJob{inner: hedgeLoop, metrics: metrics}); err != nil {
		log.Fatal().Err(err).Msg("failed to schedule hedging loop")
	}

	if cfg.BackupBucket != "" {
		backupSvc, err := newBackupService(cfg, log)
		if err != nil {
			log.Error().Err(err).Msg("failed to construct backup service, continuing without backups")
		} else if err := sched.AddJob(cfg.BackupSchedule, backupSvc); err != nil {
			log.Error().Err(err).Msg("failed to schedule ledger backup")
		}
	}

	sched.Start()
	defer sched.Stop()

	eventCtx, cancelEvent := context.WithCancel(context.Background())
	defer cancelEvent()
	go hedgeLoop.RunEventDriven(eventCtx)

	srv := server.New(server.Config{
		Log:     log,
		Port:    cfg.Port,
		DevMode: cfg.DevMode,
		Quotes:  quoteSvc,
		Metrics: metrics,
	})

	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("HTTP server failed")
		}
	}()
	log.Info().Int("port", cfg.Port).Msg("dealer started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("error during HTTP shutdown")
	}
}

// pollMetrics samples bus backpressure and per-venue cache staleness onto
// the Prometheus registry every few seconds, since neither is naturally
// observable from a single instrumented call site.
func pollMetrics(ctx context.Context, b *bus.Bus, okexBook *pricecache.OrderBookCache, bitfinexTick *pricecache.TickCache, metrics *server.Metrics) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			metrics.BusDroppedTotal.Set(float64(b.DroppedLagged()))

			now := time.Now()
			if age, err := okexBook.Age(now); err == nil {
				metrics.CacheStalenessSeconds.WithLabelValues(feeds.OkexExchangeID).Set(age.Seconds())
			}
			if age, err := bitfinexTick.Age(now); err == nil {
				metrics.CacheStalenessSeconds.WithLabelValues(feeds.BitfinexExchangeID).Set(age.Seconds())
			}
		}
	}
}

// newBackupService wires an S3-compatible uploader. Static credentials
// from config take precedence; with neither set, the SDK's ambient chain
// (instance role, shared config file) applies.
func newBackupService(cfg *config.AppConfig, log zerolog.Logger) (*reliability.BackupService, error) {
	ctx := context.Background()
	optFns := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.BackupRegion)}
	if cfg.AWSAccessKeyID != "" && cfg.AWSSecretKey != "" {
		optFns = append(optFns, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AWSAccessKeyID, cfg.AWSSecretKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, optFns...)
	if err != nil {
		return nil, err
	}

	client := s3.NewFromConfig(awsCfg)
	uploader := manager.NewUploader(client)

	return reliability.New(reliability.Config{
		Uploader:   uploader,
		Bucket:     cfg.BackupBucket,
		LedgerPath: cfg.LedgerDBPath,
		KeyPrefix:  cfg.BackupKeyPrefix,
	}, log), nil
}
