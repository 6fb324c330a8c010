package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/Rhea-Shah23/HFT-Arena/internal/agents"
	"github.com/Rhea-Shah23/HFT-Arena/internal/api"
	"github.com/Rhea-Shah23/HFT-Arena/internal/book"
	"github.com/Rhea-Shah23/HFT-Arena/internal/config"
	"github.com/Rhea-Shah23/HFT-Arena/internal/engine"
	"github.com/Rhea-Shah23/HFT-Arena/internal/gateway"
	"github.com/Rhea-Shah23/HFT-Arena/internal/latency"
	"github.com/Rhea-Shah23/HFT-Arena/internal/ledger"
	"github.com/Rhea-Shah23/HFT-Arena/internal/sim"
)

func main() {
	configPath := flag.String("config", "", "TOML run configuration (empty = built-in default)")
	seed := flag.Int64("seed", 0, "override the run seed (0 = use config)")
	events := flag.Uint64("events", 0, "override the event budget (0 = use config)")
	duration := flag.Duration("duration", 0, "override the sim-time budget (0 = use config)")
	serve := flag.Bool("serve", false, "serve the observation API during and after the run")
	port := flag.String("port", "8088", "API server port")
	dbPath := flag.String("db", "", "archive the run to this SQLite database")
	dump := flag.Bool("dump", false, "print the ledger as JSON lines after the run")
	debug := flag.Bool("debug", false, "debug logging")
	flag.Parse()

	log, err := buildLogger(*debug)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	cfg := config.Default()
	if *configPath != "" {
		cfg, err = config.Load(*configPath)
		if err != nil {
			log.Fatal("load config", zap.Error(err))
		}
	}
	if *seed != 0 {
		cfg.Seed = *seed
	}
	if *events != 0 {
		cfg.MaxEvents = *events
	}
	if *duration != 0 {
		cfg.MaxTime = config.Duration{Duration: *duration}
	}

	if err := run(cfg, *serve, *port, *dbPath, *dump, log); err != nil {
		log.Fatal("run failed", zap.Error(err))
	}
}

func buildLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func run(cfg config.Config, serve bool, port, dbPath string, dump bool, log *zap.Logger) error {
	engCfg, err := engineConfig(cfg)
	if err != nil {
		return err
	}

	instrument := book.Instrument{Symbol: cfg.Symbol, TickSize: cfg.TickSize, LotSize: cfg.LotSize}
	model := latency.NewModel(cfg.Seed)
	ids := book.NewIDSource(cfg.Seed)
	gw := gateway.New(instrument, model, ids)
	led := ledger.New()
	eng := engine.New(book.New(cfg.Symbol), led, ids, engCfg, log.Named("engine"))
	sched := sim.New(gw, eng, led, sim.Params{
		Seed:      cfg.Seed,
		MaxEvents: cfg.MaxEvents,
		MaxTime:   cfg.MaxTime.Get(),
	}, log.Named("sim"))

	for _, ac := range cfg.Agents {
		model.Register(ac.ID, latencyProfile(cfg.Latency, ac.Latency))
		agent, err := agents.New(agents.Config{
			ID:          ac.ID,
			Strategy:    ac.Strategy,
			Seed:        cfg.Seed,
			Interval:    ac.Interval.Get(),
			RefPrice:    ac.RefPrice,
			Quantity:    ac.Quantity,
			Spread:      ac.Spread,
			MaxPosition: ac.MaxPosition,
			TickSize:    cfg.TickSize,
		})
		if err != nil {
			return err
		}
		sched.AddAgent(agent)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if len(cfg.Kafka.Brokers) > 0 {
		exporter := ledger.NewExporter(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		defer exporter.Close()
		led.OnEntry(func(e ledger.Entry) {
			if err := exporter.Publish(ctx, e); err != nil {
				log.Warn("kafka publish", zap.Error(err), zap.Uint64("seq", e.Seq))
			}
		})
		log.Info("kafka export enabled", zap.Strings("brokers", cfg.Kafka.Brokers), zap.String("topic", cfg.Kafka.Topic))
	}

	var httpServer *http.Server
	if serve {
		srv := api.NewServer(led, log.Named("api"))
		sched.OnStep(func(now time.Duration) {
			srv.Refresh(now, eng.Book().Snapshot(), eng.Stats())
		})

		httpServer = &http.Server{Addr: ":" + port, Handler: srv.Router()}
		go func() {
			log.Info("api listening", zap.String("addr", httpServer.Addr))
			if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Error("api server", zap.Error(err))
			}
		}()
	}

	log.Info("run starting",
		zap.String("symbol", cfg.Symbol),
		zap.Int64("seed", cfg.Seed),
		zap.Int("agents", len(cfg.Agents)),
		zap.Uint64("max_events", cfg.MaxEvents),
		zap.Duration("max_time", cfg.MaxTime.Get()),
	)

	result, runErr := sched.Run(ctx)
	log.Info("run finished",
		zap.Uint64("events", result.Events),
		zap.Uint64("trades", result.Trades),
		zap.Duration("sim_time", result.EndTime),
	)
	if runErr != nil {
		// The ledger and pending trace survive a fatal halt; archive and
		// dump still run so the failure can be inspected.
		log.Error("run halted", zap.Error(runErr))
		for _, te := range sched.PendingTrace() {
			log.Error("pending event",
				zap.Duration("time", te.Time),
				zap.String("kind", te.Kind),
				zap.String("agent", te.AgentID),
				zap.String("order", te.OrderID),
			)
		}
	}

	if dbPath != "" {
		if err := archive(dbPath, cfg, result, led, ids); err != nil {
			log.Error("archive run", zap.Error(err))
		} else {
			log.Info("run archived", zap.String("db", dbPath))
		}
	}

	if dump {
		enc := json.NewEncoder(os.Stdout)
		for _, e := range led.Entries() {
			if err := enc.Encode(e); err != nil {
				return err
			}
		}
	}

	if serve && runErr == nil {
		log.Info("run complete, still serving; interrupt to exit")
		<-ctx.Done()
	}
	if httpServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Warn("api shutdown", zap.Error(err))
		}
	}

	return runErr
}

func engineConfig(cfg config.Config) (engine.Config, error) {
	selfMatch, err := engine.ParseSelfMatchPolicy(cfg.SelfMatch)
	if err != nil {
		return engine.Config{}, err
	}
	residual, err := engine.ParseResidualPolicy(cfg.MarketResidual)
	if err != nil {
		return engine.Config{}, err
	}
	return engine.Config{
		SelfMatch:      selfMatch,
		MarketResidual: residual,
		MaxOpenOrders:  cfg.MaxOpenOrders,
		MaxDepth:       cfg.MaxDepth,
	}, nil
}

func latencyProfile(base config.Latency, override *config.Latency) latency.Profile {
	src := base
	if override != nil {
		src = *override
	}
	p := latency.Profile{
		Base:     src.Base.Get(),
		Jitter:   src.Jitter.Get(),
		LossRate: src.LossRate,
	}
	if p.Base <= 0 {
		p = latency.DefaultProfile()
	}
	return p
}

func archive(path string, cfg config.Config, result sim.Result, led *ledger.Ledger, ids *book.IDSource) error {
	store, err := ledger.OpenStore(path)
	if err != nil {
		return err
	}
	defer store.Close()

	entries := led.Entries()
	trades := led.Trades()
	return store.SaveRun(ledger.RunRecord{
		ID:      ids.Next(),
		Symbol:  cfg.Symbol,
		Seed:    cfg.Seed,
		Events:  len(entries),
		Trades:  len(trades),
		SimTime: result.EndTime,
	}, entries, trades)
}
