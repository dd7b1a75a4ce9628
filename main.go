package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"interpserve/auth"
	"interpserve/config"
	"interpserve/job"
	"interpserve/logger"
	"interpserve/pipeline"
	"interpserve/records"
	"interpserve/routes"
	"interpserve/svfi"
	"interpserve/targets"
	"interpserve/workspace"
)

const cleanupInterval = time.Hour

// onStarted runs on run's goroutine once the server is listening.
var onStarted = func() {}

func main() {
	tokenMode := flag.Bool("token", false, "print an API token and exit")
	subject := flag.String("sub", "admin", "subject of the token printed by -token")
	ttl := flag.Duration("ttl", 30*24*time.Hour, "lifetime of the token printed by -token (0 for none)")
	envFile := flag.String("env", ".env", "dotenv file loaded before reading configuration")
	flag.Parse()

	if err := config.LoadEnvFile(*envFile); err != nil {
		fmt.Fprintf(os.Stderr, "failed to load %s: %v\n", *envFile, err)
		os.Exit(1)
	}

	if *tokenMode {
		os.Exit(printToken(*subject, *ttl))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx)
	stop()
	if err != nil {
		logger.Errorf("%v", err)
		logger.Close()
		os.Exit(1)
	}
	logger.Close()
}

func printToken(subject string, ttl time.Duration) int {
	secret := config.GetJWTSecret()
	if secret == "" {
		fmt.Fprintln(os.Stderr, "INTERPSERVE_JWT_SECRET is not set")
		return 1
	}
	tok, err := auth.Sign([]byte(secret), subject, ttl)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	fmt.Println(tok)
	return 0
}

// run serves until ctx is done. The workspace is removed on every return,
// including after a panic.
func run(ctx context.Context) (err error) {
	level, lerr := logger.ParseLevel(config.GetLogLevel())
	if lerr != nil {
		return lerr
	}
	if err := logger.Init(config.GetLogFile(), true, logger.DefaultFileOptions); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	logger.SetLevel(level)

	logger.Info("Starting interpserve initialization")

	svfiDir := config.GetSVFIDir()
	entrypoint := config.GetSVFIEntrypoint()
	if err := svfi.CheckInstallation(svfiDir, entrypoint); err != nil {
		return fmt.Errorf("SVFI installation check failed: %w", err)
	}
	if !svfi.AcceleratorAvailable() {
		logger.Warn("No CUDA accelerator detected; SVFI will run very slowly or fail")
	}

	// The workspace goes away on every exit path, panics included.
	ws, err := workspace.New(config.GetWorkBaseDir())
	if err != nil {
		return err
	}
	defer ws.Cleanup()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	if err := os.MkdirAll(config.GetDataDir(), 0755); err != nil {
		return fmt.Errorf("failed to create data dir: %w", err)
	}

	logger.Debug("Initializing records database")
	recs, err := records.Open(config.GetRecordsDBPath())
	if err != nil {
		return err
	}
	defer recs.Close()
	logger.Info("Records database initialized successfully")

	logger.Debug("Initializing targets database")
	tgts, err := targets.Open(config.GetTargetsDBPath())
	if err != nil {
		return err
	}
	defer tgts.Close()
	logger.Info("Targets database initialized successfully")

	runner := svfi.NewRunner(config.GetPython(), entrypoint)
	finalizer := &job.Recorder{Records: recs, Targets: tgts, ServeDir: config.GetDirectServeBaseDir()}
	jobs := job.NewManager(pipeline.NewProcessor(runner, ""), ws, finalizer, config.GetQueueSize())

	ctx, stop := context.WithCancel(ctx)
	defer stop()

	logger.Info("Starting job worker")
	workerDone := make(chan struct{})
	go func() {
		defer close(workerDone)
		jobs.Run(ctx)
	}()

	logger.Info("Starting cleanup routine")
	go cleanupRoutine(ctx, jobs, ws, recs)

	logger.Info("Registering HTTP routes")
	mux := http.NewServeMux()
	srv := &routes.Server{
		Jobs:           jobs,
		Workspace:      ws,
		Records:        recs,
		Targets:        tgts,
		MaxUploadBytes: config.GetMaxUploadBytes(),
		JWTSecret:      config.GetJWTSecret(),
	}
	srv.Register(mux)
	if srv.JWTSecret == "" {
		logger.Warn("INTERPSERVE_JWT_SECRET is not set; API routes are unauthenticated")
	}

	server := &http.Server{
		Addr:              config.GetListenAddr(),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	defer server.Close()
	serveErr := make(chan error, 1)
	go func() {
		logger.Infof("interpserve listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	onStarted()

	select {
	case <-ctx.Done():
		logger.Info("Interrupted, shutting down")
	case err := <-serveErr:
		if err != nil {
			stop()
			<-workerDone
			return fmt.Errorf("server failed: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("HTTP shutdown: %v", err)
	}
	// The worker's context is already cancelled, which kills any running SVFI.
	<-workerDone
	return nil
}

// cleanupRoutine drops finished jobs past their retention, removes stray job
// directories and expires old records.
func cleanupRoutine(ctx context.Context, jobs *job.Manager, ws *workspace.Workspace, recs *records.Store) {
	logger.Infof("Cleanup routine started - will run every %v", cleanupInterval)
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("Cleanup routine stopped due to context cancellation")
			return
		case <-ticker.C:
			runCleanup(jobs, ws, recs, config.GetJobRetention(), config.GetRecordMaxAge())
		}
	}
}

func runCleanup(jobs *job.Manager, ws *workspace.Workspace, recs *records.Store, retention, recordMaxAge time.Duration) {
	logger.Debug("Running scheduled cleanup")

	for _, id := range jobs.FinishedBefore(time.Now().Add(-retention)) {
		if err := jobs.Forget(id); err != nil {
			continue
		}
		if err := ws.RemoveJob(id); err != nil {
			logger.Errorf("Failed to remove job dir %s: %v", id, err)
		}
	}

	removed, err := ws.Prune(retention, jobs.Active)
	if err != nil {
		logger.Errorf("Failed to prune job dirs: %v", err)
	} else if len(removed) > 0 {
		logger.Infof("Pruned %d stale job dirs", len(removed))
	}

	n, err := recs.CleanupOlderThan(recordMaxAge)
	if err != nil {
		logger.Errorf("Failed to cleanup old records: %v", err)
	} else if n > 0 {
		logger.Infof("Removed %d records older than %v", n, recordMaxAge)
	}
}
