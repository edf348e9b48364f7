package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/Johnnenna2/weekly-news/internal/analytics"
	"github.com/Johnnenna2/weekly-news/internal/api"
	"github.com/Johnnenna2/weekly-news/internal/config"
	"github.com/Johnnenna2/weekly-news/internal/cron"
	"github.com/Johnnenna2/weekly-news/internal/domain"
	"github.com/Johnnenna2/weekly-news/internal/leaderelection"
	"github.com/Johnnenna2/weekly-news/internal/metrics"
	"github.com/Johnnenna2/weekly-news/internal/provision"
	"github.com/Johnnenna2/weekly-news/internal/reconciler"
	"github.com/Johnnenna2/weekly-news/internal/runner"
	"github.com/Johnnenna2/weekly-news/internal/scheduler"
	"github.com/Johnnenna2/weekly-news/internal/script"
	"github.com/Johnnenna2/weekly-news/internal/store/memory"
	"github.com/Johnnenna2/weekly-news/internal/store/postgres"
	"github.com/Johnnenna2/weekly-news/internal/transport/channel"

	_ "github.com/lib/pq"
)

// Build-time variables set via -ldflags
var (
	version = "dev"
	commit  = "unknown"
)

// Exit codes distinguish failure classes so the hosting environment can tell
// a broken deployment (config, setup) from a failing script.
const (
	exitSuccess       = 0
	exitRuntimeError  = 1
	exitInvalidConfig = 2
	exitSetupFailure  = 3
	exitScriptFailure = 4
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(exitRuntimeError)
	}

	cmd := os.Args[1]

	switch cmd {
	case "run":
		os.Exit(runOnce())
	case "serve":
		os.Exit(runServe())
	case "validate":
		os.Exit(runValidate())
	case "config":
		os.Exit(runConfig())
	case "version":
		os.Exit(runVersion())
	case "--help", "-h", "help":
		printUsage()
		os.Exit(exitSuccess)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", cmd)
		printUsage()
		os.Exit(exitRuntimeError)
	}
}

func printUsage() {
	fmt.Println(`weeklynews - scheduled runner for the weekly market outlook script

Usage:
  weeklynews <command>

Commands:
  run        Execute the script once, immediately, and exit
  serve      Run the scheduler, runner and HTTP API
  validate   Validate configuration (no connections made)
  config     Print effective configuration as JSON (secrets masked)
  version    Print version information

Exit codes (run):
  0  script succeeded
  1  runtime error
  2  configuration failure (missing credential or invalid config)
  3  setup failure (dependency install failed)
  4  script failure (script exited non-zero or could not start)

Environment Variables:
  DISCORD_WEBHOOK_URL       Discord webhook for the outlook post (required)
  OPENAI_API_KEY            OpenAI API key for the script (required)
  NEWS_API_KEY              News API key for the script (required)

  SCHEDULE                  Cron expression (default: "0 14 * * 0", Sundays 14:00)
  TIMEZONE                  IANA timezone for the schedule (default: "UTC")
  SCRIPT_COMMAND            Script invocation (default: "python3 main.py")
  INSTALL_COMMAND           Dependency install; empty string disables
                            (default: "python3 -m pip install -r requirements.txt")
  WORKDIR                   Working directory for install and script
  SCRIPT_TIMEOUT            Script timeout, 0 = none (default: "0")
  PROVISION_TIMEOUT         Install timeout (default: "10m")

  TICK_INTERVAL             Scheduler tick interval (default: "30s")
  HTTP_ADDR                 HTTP server address (default: ":8080"; PORT also honored)
  HTTP_SHUTDOWN_TIMEOUT     Graceful HTTP shutdown timeout (default: "10s")
  RUNNER_DRAIN_TIMEOUT      Runner event drain timeout (default: "30s")
  EVENTBUS_BUFFER_SIZE      Trigger event buffer size (default: "16")

  DATABASE_URL              PostgreSQL connection string (optional; in-memory otherwise)
  DB_OP_TIMEOUT             Database operation timeout (default: "5s")
  DB_MAX_OPEN_CONNS         Max open database connections (default: "10")
  DB_MAX_IDLE_CONNS         Max idle database connections (default: "5")
  DB_CONN_MAX_LIFETIME      Max connection lifetime (default: "30m")

  REDIS_ADDR                Redis address for run analytics (optional)

  METRICS_ENABLED           Enable Prometheus metrics (default: "false")
  METRICS_PATH              Metrics endpoint path (default: "/metrics")
  METRICS_PORT              Metrics server port (default: "9090")

  RECONCILE_ENABLED         Enable abandoned-run reconciler (default: "false")
  RECONCILE_INTERVAL        How often to scan for abandoned runs (default: "5m")
  RECONCILE_THRESHOLD       Age before a run counts as abandoned (default: "2h")
  RECONCILE_BATCH_SIZE      Max abandoned runs per cycle (default: "50")

  LEADER_ELECTION_ENABLED   Single scheduler across instances, needs DATABASE_URL (default: "false")
  LEADER_LOCK_KEY           Postgres advisory lock key (default: "917405")
  LEADER_RETRY_INTERVAL     Follower lock retry interval (default: "5s")
  LEADER_HEARTBEAT_INTERVAL Leader connection ping interval (default: "2s")`)
}

// runOnce executes a single manual run end to end and maps its outcome to an
// exit code. No scheduler, no HTTP server, no database.
func runOnce() int {
	cfg := config.Load()

	if err := config.Validate(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		return exitInvalidConfig
	}

	store := memory.New()
	prov := provision.NewExec(cfg.InstallCommand, cfg.WorkDir, cfg.ProvisionTimeout)
	scr := script.NewExec(cfg.ScriptCommand, cfg.WorkDir, cfg.ScriptTimeout)
	run := runner.New(cfg.Credentials, prov, scr, store)

	now := time.Now().UTC()
	event := domain.TriggerEvent{
		RunID:     uuid.New(),
		Kind:      domain.TriggerKindManual,
		FiredAt:   now,
		CreatedAt: now,
	}

	if err := store.InsertRun(context.Background(), domain.Run{
		ID:        event.RunID,
		Trigger:   event.Kind,
		Status:    domain.RunStatusPending,
		ExitCode:  -1,
		CreatedAt: now,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "failed to record run: %v\n", err)
		return exitRuntimeError
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	result, err := run.Execute(ctx, event)
	if err == nil {
		return exitSuccess
	}

	fmt.Fprintf(os.Stderr, "run failed: %v\n", err)
	switch result.Failure {
	case domain.FailureConfiguration:
		return exitInvalidConfig
	case domain.FailureSetup:
		return exitSetupFailure
	case domain.FailureScript:
		return exitScriptFailure
	default:
		return exitRuntimeError
	}
}

// logConfigWarnings flags configurations that are valid but likely not what
// the operator wants in production.
func logConfigWarnings(cfg *config.Config) {
	if cfg.DatabaseURL == "" {
		log.Println("WARNING: DATABASE_URL not set; run history lives in memory and is lost on restart")
	}

	if cfg.DatabaseURL != "" && !cfg.ReconcileEnabled {
		log.Println("WARNING: RECONCILE_ENABLED=false; runs interrupted by a crash stay non-terminal forever")
	}

	if cfg.ScriptTimeout == 0 {
		log.Println("INFO: SCRIPT_TIMEOUT=0; a hung script blocks all further runs until killed externally")
	}
}

func runServe() int {
	cfg := config.Load()

	if err := config.Validate(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		return exitInvalidConfig
	}

	logConfigWarnings(&cfg)

	sched, err := cron.NewParser().Parse(cfg.Schedule, cfg.Timezone)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid schedule: %v\n", err)
		return exitInvalidConfig
	}

	// Store selection: Postgres when configured, otherwise in-memory.
	var (
		schedStore scheduler.Store
		runStore   runner.Store
		apiStore   api.Store
		reconStore reconciler.Store
		db         *sql.DB
	)

	if cfg.DatabaseURL != "" {
		db, err = sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to open database: %v\n", err)
			return exitRuntimeError
		}
		defer db.Close()

		db.SetMaxOpenConns(cfg.DBMaxOpenConns)
		db.SetMaxIdleConns(cfg.DBMaxIdleConns)
		db.SetConnMaxLifetime(cfg.DBConnMaxLifetime)

		log.Printf("weeklynews: db pool configured (max_open=%d, max_idle=%d, max_lifetime=%s)",
			cfg.DBMaxOpenConns, cfg.DBMaxIdleConns, cfg.DBConnMaxLifetime)

		if err := db.Ping(); err != nil {
			fmt.Fprintf(os.Stderr, "failed to connect to database: %v\n", err)
			return exitRuntimeError
		}

		pgStore := postgres.New(db)
		schedStore, runStore, apiStore, reconStore = pgStore, pgStore, pgStore, pgStore
	} else {
		log.Println("weeklynews: DATABASE_URL not set; using in-memory run store")
		memStore := memory.New()
		schedStore, runStore, apiStore, reconStore = memStore, memStore, memStore, memStore
	}

	// Initialize metrics sink (optional)
	var metricsSink *metrics.PrometheusSink
	var metricsServer *http.Server

	if cfg.MetricsEnabled {
		metricsSink = metrics.NewPrometheusSink(prometheus.DefaultRegisterer)
		log.Printf("weeklynews: metrics enabled (port=%s, path=%s)", cfg.MetricsPort, cfg.MetricsPath)

		metricsMux := http.NewServeMux()
		metricsMux.Handle(cfg.MetricsPath, promhttp.Handler())
		metricsServer = &http.Server{
			Addr:    ":" + cfg.MetricsPort,
			Handler: metricsMux,
		}
		go func() {
			log.Printf("weeklynews: metrics server listening on :%s", cfg.MetricsPort)
			if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("weeklynews: metrics server error: %v", err)
			}
		}()
	} else {
		log.Println("weeklynews: METRICS_ENABLED not set; metrics disabled")
	}

	var busOpts []channel.Option
	if metricsSink != nil {
		busOpts = append(busOpts, channel.WithMetrics(metricsSink))
	}
	bus := channel.NewEventBus(cfg.EventBusBufferSize, busOpts...)

	schd := scheduler.New(
		scheduler.Config{TickInterval: cfg.TickInterval},
		schedStore,
		sched,
		bus,
	)
	if metricsSink != nil {
		schd = schd.WithMetrics(metricsSink)
	}

	prov := provision.NewExec(cfg.InstallCommand, cfg.WorkDir, cfg.ProvisionTimeout)
	scr := script.NewExec(cfg.ScriptCommand, cfg.WorkDir, cfg.ScriptTimeout)

	run := runner.New(cfg.Credentials, prov, scr, runStore).
		WithDrainTimeout(cfg.RunnerDrainTimeout)
	if metricsSink != nil {
		run = run.WithMetrics(metricsSink)
	}

	// Wire analytics if Redis is configured
	if cfg.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr: cfg.RedisAddr,
		})
		run = run.WithAnalytics(analytics.NewRedisSink(redisClient))
		log.Printf("weeklynews: analytics enabled (redis=%s)", cfg.RedisAddr)
	} else {
		log.Println("weeklynews: REDIS_ADDR not set; analytics disabled")
	}

	var recon *reconciler.Reconciler
	if cfg.ReconcileEnabled {
		recon = reconciler.New(
			reconciler.Config{
				Interval:  cfg.ReconcileInterval,
				Threshold: cfg.ReconcileThreshold,
				BatchSize: cfg.ReconcileBatchSize,
			},
			reconStore,
		)
		if metricsSink != nil {
			recon = recon.WithMetrics(metricsSink)
		}
		log.Printf("weeklynews: reconciler enabled (interval=%s, threshold=%s, batch=%d)",
			cfg.ReconcileInterval, cfg.ReconcileThreshold, cfg.ReconcileBatchSize)
	} else {
		log.Println("weeklynews: RECONCILE_ENABLED not set; reconciler disabled")
	}

	apiHandler := api.NewHandler(apiStore, schd)
	if db != nil {
		apiHandler = apiHandler.WithHealthChecker(db)
	}

	httpServer := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: apiHandler,
	}

	go func() {
		log.Printf("weeklynews: http server listening on %s", cfg.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("weeklynews: http server error: %v", err)
		}
	}()

	// The runner consumes the bus on its own context so it can drain after
	// the trigger sources stop.
	runnerCtx, cancelRunner := context.WithCancel(context.Background())
	var runnerWg sync.WaitGroup

	runnerWg.Add(1)
	go func() {
		defer runnerWg.Done()
		run.Run(runnerCtx, bus.Channel())
	}()

	// Trigger sources (scheduler, reconciler) run either directly or behind
	// leader election when several instances share a database.
	startDuties := func(ctx context.Context, wg *sync.WaitGroup) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = schd.Run(ctx)
		}()
		if recon != nil {
			wg.Add(1)
			go func() {
				defer wg.Done()
				recon.Run(ctx)
			}()
		}
	}

	var (
		dutiesWg     sync.WaitGroup
		cancelDuties context.CancelFunc
		electorWg    sync.WaitGroup
		cancelElect  context.CancelFunc
	)

	if cfg.LeaderEnabled {
		elector := leaderelection.New(
			db,
			cfg.LeaderLockKey,
			cfg.LeaderRetryInterval,
			cfg.LeaderHeartbeatInterval,
			func(leaderCtx context.Context) { startDuties(leaderCtx, &dutiesWg) },
			dutiesWg.Wait,
		)

		var electorCtx context.Context
		electorCtx, cancelElect = context.WithCancel(context.Background())
		electorWg.Add(1)
		go func() {
			defer electorWg.Done()
			elector.Run(electorCtx)
		}()
		log.Printf("weeklynews: leader election enabled (lock_key=%d)", cfg.LeaderLockKey)
	} else {
		var dutiesCtx context.Context
		dutiesCtx, cancelDuties = context.WithCancel(context.Background())
		defer cancelDuties()
		startDuties(dutiesCtx, &dutiesWg)
	}

	log.Printf("weeklynews: started (schedule=%q tz=%s tick=%s http=%s)",
		cfg.Schedule, cfg.Timezone, cfg.TickInterval, cfg.HTTPAddr)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	received := <-sig

	log.Printf("weeklynews: received signal %v, shutting down", received)

	// Phase 1: stop trigger sources (no new events emitted)
	log.Println("weeklynews: stopping trigger sources...")
	if cancelElect != nil {
		cancelElect()
		electorWg.Wait()
	} else {
		cancelDuties()
	}
	dutiesWg.Wait()
	log.Println("weeklynews: trigger sources stopped")

	// Phase 2: stop runner (drains buffered events before returning)
	log.Println("weeklynews: stopping runner (draining events)...")
	cancelRunner()
	runnerWg.Wait()
	log.Println("weeklynews: runner stopped")

	// Phase 3: stop HTTP server with graceful shutdown
	log.Println("weeklynews: stopping http server...")
	httpShutdownCtx, httpShutdownCancel := context.WithTimeout(context.Background(), cfg.HTTPShutdownTimeout)
	defer httpShutdownCancel()
	if err := httpServer.Shutdown(httpShutdownCtx); err != nil {
		log.Printf("weeklynews: http server shutdown error: %v", err)
	}
	log.Println("weeklynews: http server stopped")

	// Phase 4: stop metrics server if running (with same timeout)
	if metricsServer != nil {
		log.Println("weeklynews: stopping metrics server...")
		metricsShutdownCtx, metricsShutdownCancel := context.WithTimeout(context.Background(), cfg.HTTPShutdownTimeout)
		defer metricsShutdownCancel()
		if err := metricsServer.Shutdown(metricsShutdownCtx); err != nil {
			log.Printf("weeklynews: metrics server shutdown error: %v", err)
		}
		log.Println("weeklynews: metrics server stopped")
	}

	log.Println("weeklynews: stopped")
	return exitSuccess
}

func runValidate() int {
	cfg := config.Load()

	if err := config.Validate(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return exitInvalidConfig
	}

	fmt.Println("configuration valid")
	return exitSuccess
}

func runConfig() int {
	cfg := config.Load()

	data, err := cfg.MaskedJSON()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to marshal config: %v\n", err)
		return exitRuntimeError
	}

	fmt.Println(string(data))
	return exitSuccess
}

func runVersion() int {
	fmt.Printf("weeklynews version %s (commit: %s)\n", version, commit)
	return exitSuccess
}
