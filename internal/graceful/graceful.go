package graceful

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"eventsCatalog/internal/utils/logger/sl"
)

// Operation is a named cleanup step run on shutdown.
type Operation func(ctx context.Context) error

// GracefulShutdown waits for SIGINT/SIGTERM/SIGHUP or ctx cancellation, then runs every
// operation concurrently under timeout. The returned channel closes when all are done.
func GracefulShutdown(ctx context.Context, timeout time.Duration, ops map[string]Operation, log *slog.Logger) <-chan struct{} {
	wait := make(chan struct{})

	go func() {
		s := make(chan os.Signal, 1)
		signal.Notify(s, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
		defer signal.Stop(s)

		select {
		case sig := <-s:
			log.Info("shutting down", slog.String("signal", sig.String()))
		case <-ctx.Done():
			log.Info("shutting down", slog.String("reason", "context done"))
		}

		Run(timeout, ops, log)
		close(wait)
	}()

	return wait
}

// Run executes ops concurrently and returns when all finished or the timeout fired.
func Run(timeout time.Duration, ops map[string]Operation, log *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	timeoutFunc := time.AfterFunc(timeout, func() {
		log.Error("timeout elapsed, force exit", slog.Duration("timeout", timeout))
	})
	defer timeoutFunc.Stop()

	var wg sync.WaitGroup
	for key, op := range ops {
		wg.Add(1)
		go func(name string, op Operation) {
			defer wg.Done()

			log.Info("cleaning up", slog.String("operation", name))
			if err := op(ctx); err != nil {
				log.Error("clean up failed", slog.String("operation", name), sl.Err(err))
				return
			}
			log.Info("was shutdown gracefully", slog.String("operation", name))
		}(key, op)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
	}
}
