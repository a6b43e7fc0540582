// Command server is the concurrenthttp entrypoint. The same binary plays
// two roles, distinguished by the CONCURRENTHTTP_ROLE environment variable:
// with no role set it is the master (spec.md §4.1) — it binds the listening
// socket, creates the shared region, and forks workers of itself; re-exec'd
// with CONCURRENTHTTP_ROLE=worker it is a worker (spec.md §4.2) that
// attaches to the fds its parent left in ExtraFiles and serves connections.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/originserver/concurrenthttp/internal/config"
	"github.com/originserver/concurrenthttp/internal/master"
	"github.com/originserver/concurrenthttp/internal/worker"
)

// configPathEnv names the environment variable that overrides where
// server.conf lives, for tests/containers.
const configPathEnv = "CONCURRENTHTTP_CONFIG"

const defaultConfigPath = "server.conf"

func main() {
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()

	cfgPath := os.Getenv(configPathEnv)
	if cfgPath == "" {
		cfgPath = defaultConfigPath
	}
	cfg, warnings, err := config.Load(cfgPath)
	if err != nil {
		log.Fatal().Err(err).Msg("loading configuration")
	}
	for _, w := range warnings {
		log.Warn().Str("key", w.Key).Msg(w.Message)
	}

	if os.Getenv(master.RoleEnv) == master.RoleWorker {
		runWorker(cfg, log)
		return
	}
	runMaster(cfg, log)
}

func runMaster(cfg config.Config, log zerolog.Logger) {
	m, err := master.New(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("master init")
	}
	if err := m.Run(context.Background()); err != nil {
		log.Fatal().Err(err).Msg("master run")
	}
}

// runWorker wraps the inherited listener fd (3) as an *os.File and hands it,
// together with the raw shared-region fd (4), to worker.New. These indices match
// exec.Cmd.ExtraFiles order in internal/master.
func runWorker(cfg config.Config, log zerolog.Logger) {
	const (
		listenerFD = 3
		regionFD   = 4
	)
	listenerFile := os.NewFile(uintptr(listenerFD), "listener")
	if listenerFile == nil {
		log.Fatal().Msg("worker: no inherited listener fd")
	}

	w, err := worker.New(cfg, log, listenerFile, regionFD)
	if err != nil {
		log.Fatal().Err(err).Msg("worker init")
	}

	sigCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	go func() {
		<-sigCtx.Done()
		w.Shutdown()
	}()

	log.Info().
		Int("pid", os.Getpid()).
		Int("threads", cfg.ThreadsPerWorker).
		Msg("worker ready")
	w.Run()
	log.Info().Int("pid", os.Getpid()).Msg("worker stopped")
}
