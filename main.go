package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	apihttp "aeso-report/internal/api/http"
	"aeso-report/internal/audit"
	"aeso-report/internal/auth"
	"aeso-report/internal/marketreport/application"
	marketreport "aeso-report/internal/marketreport/domain"
	filestore "aeso-report/internal/marketreport/infrastructure/file"
	"aeso-report/internal/marketreport/infrastructure/memory"
	"aeso-report/internal/marketreport/infrastructure/postgres"
	"aeso-report/internal/marketreport/interfaces/aeso"
	"aeso-report/internal/marketreport/interfaces/export"
	"aeso-report/internal/notify"
	"aeso-report/internal/observability/metrics"
)

func main() {
	once := flag.Bool("once", false, "run one report pass, write the table and exit")
	out := flag.String("out", "", "output file for -once (format from extension: .csv, .xlsx, .pdf)")
	issueRole := flag.String("issue-token", "", "print a signed API token for this role and exit")
	issueSubject := flag.String("subject", "cli", "subject for -issue-token")
	issueTTL := flag.Duration("ttl", 24*time.Hour, "lifetime for -issue-token (0 for none)")
	flag.Parse()

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("dotenv load error: %v", err)
	}
	svc := loadServiceConfig()
	logger := log.New(os.Stdout, "", log.LstdFlags)

	if *issueRole != "" {
		token, err := auth.IssueToken([]byte(svc.JWTSecret), *issueSubject, auth.Role(*issueRole), *issueTTL)
		if err != nil {
			logger.Fatalf("issue token error: %v", err)
		}
		fmt.Println(token)
		return
	}

	cfg, err := application.LoadConfig()
	if err != nil {
		logger.Fatalf("report config error: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, db, err := openStore(ctx, cfg, svc)
	if err != nil {
		logger.Fatalf("snapshot store error: %v", err)
	}
	if db != nil {
		defer db.Close()
	}
	metrics.Init(db, logger)

	client, err := aeso.NewClient(cfg.Source.BaseURL, cfg.Source.Path, cfg.Source.ContentType, cfg.Source.Timeout)
	if err != nil {
		logger.Fatalf("report client error: %v", err)
	}
	var archive application.RawArchive
	if cfg.Storage.RawRoot != "" {
		rawArchive, err := filestore.NewRawArchive(cfg.Storage.RawRoot)
		if err != nil {
			logger.Fatalf("raw archive error: %v", err)
		}
		archive = rawArchive
	}

	clock := application.SystemClock{}
	processor, err := application.NewProcessor(cfg, store, clock, application.WithLogger(logger))
	if err != nil {
		logger.Fatalf("report processor error: %v", err)
	}
	var runnerOpts []application.RunnerOption
	if svc.AlertWebhookURL != "" {
		webhook := notify.NewWebhookNotifier(svc.AlertWebhookURL, svc.AlertTimeout)
		runnerOpts = append(runnerOpts, application.WithRunNotifier(notify.NewRunNotifier(webhook)))
	}
	runner, err := application.NewRunner(client, processor, archive, clock, cfg.Window, logger, runnerOpts...)
	if err != nil {
		logger.Fatalf("report runner error: %v", err)
	}
	exportOpts := export.Options{IncludeClosingPrice: cfg.Output.IncludeClosingPrice}

	if *once {
		if err := runOnce(ctx, runner, *out, exportOpts, logger); err != nil {
			logger.Fatalf("report run error: %v", err)
		}
		return
	}

	if svc.JWTSecret == "" {
		logger.Fatal("AUTH_JWT_SECRET is required")
	}

	auditor, err := openAuditor(ctx, db, logger)
	if err != nil {
		logger.Fatalf("audit store error: %v", err)
	}

	scheduler, err := application.NewScheduler(runner, cfg.Schedule.DailyAt, clock, logger)
	if err != nil {
		logger.Fatalf("report scheduler error: %v", err)
	}
	go scheduler.Start(ctx)

	policy := auth.NewPolicy(auth.ReportRules(), "/healthz", "/metrics")
	authMiddleware := auth.NewMiddleware([]byte(svc.JWTSecret), policy, auth.WithDenyLogger(logger))

	generationHandler := apihttp.NewGenerationHandler(runner, exportOpts)
	mux := http.NewServeMux()
	mux.Handle("/api/v1/runs", apihttp.NewRunsHandler(runner, auditor))
	mux.Handle("/api/v1/generation", generationHandler)
	mux.Handle("/api/v1/generation.csv", generationHandler)
	mux.Handle("/api/v1/generation.xlsx", generationHandler)
	mux.Handle("/api/v1/generation.pdf", generationHandler)
	mux.Handle("/api/v1/snapshots/", apihttp.NewSnapshotHandler(store))
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	server := &http.Server{
		Addr:              svc.HTTPAddr,
		Handler:           loggingMiddleware(authMiddleware.Wrap(mux), logger),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	logger.Printf("http listening on %s", svc.HTTPAddr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal(err)
	}
}

type serviceConfig struct {
	DatabaseURL     string
	HTTPAddr        string
	JWTSecret       string
	AlertWebhookURL string
	AlertTimeout    time.Duration
}

func loadServiceConfig() serviceConfig {
	return serviceConfig{
		DatabaseURL:     getenvDefault("DATABASE_URL", getenvDefault("PG_DSN", "")),
		HTTPAddr:        getenvDefault("HTTP_ADDR", ":8080"),
		JWTSecret:       getenvDefault("AUTH_JWT_SECRET", getenvDefault("JWT_SECRET", "")),
		AlertWebhookURL: getenvDefault("REPORT_ALERT_WEBHOOK_URL", ""),
		AlertTimeout:    getenvDurationDefault("REPORT_ALERT_TIMEOUT", 5*time.Second),
	}
}

func openAuditor(ctx context.Context, db *sql.DB, logger *log.Logger) (audit.Logger, error) {
	if db == nil {
		return audit.NewStdLogger(logger), nil
	}
	repo := audit.NewRepository(db)
	if err := repo.EnsureSchema(ctx); err != nil {
		return nil, err
	}
	return repo, nil
}

func openStore(ctx context.Context, cfg application.Config, svc serviceConfig) (marketreport.SnapshotStore, *sql.DB, error) {
	switch cfg.Storage.Driver {
	case application.StoragePostgres:
		if svc.DatabaseURL == "" {
			return nil, nil, errors.New("DATABASE_URL or PG_DSN is required for postgres storage")
		}
		db, err := sql.Open("pgx", svc.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		if err := db.PingContext(ctx); err != nil {
			db.Close()
			return nil, nil, err
		}
		store := postgres.NewSnapshotStore(db)
		if err := store.EnsureSchema(ctx); err != nil {
			db.Close()
			return nil, nil, err
		}
		return store, db, nil
	case application.StorageMemory:
		return memory.NewSnapshotStore(), nil, nil
	default:
		store, err := filestore.NewSnapshotStore(cfg.Storage.Root)
		return store, nil, err
	}
}

func runOnce(ctx context.Context, runner *application.Runner, out string, opts export.Options, logger *log.Logger) error {
	result, err := runner.Run(ctx)
	if err != nil {
		return err
	}
	logger.Printf("report run summary: id=%s dates=%d rows=%d date_failures=%d fetch_failures=%d",
		result.ID, result.Dates, len(result.Rows), len(result.Failures), len(result.FetchFailures))
	if out == "" {
		return export.WriteCSV(os.Stdout, result.Rows, opts)
	}
	format := filepath.Ext(out)
	if format != "" {
		format = format[1:]
	}
	body, err := export.Render(format, result.Rows, opts)
	if err != nil {
		return err
	}
	return os.WriteFile(out, body, 0o644)
}

func getenvDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvDurationDefault(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func loggingMiddleware(next http.Handler, logger *log.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		resp := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(resp, r)
		logger.Printf("http %s %s %d %s", r.Method, r.URL.Path, resp.status, time.Since(start))
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}
