package app

import (
	"context"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Astemirdum/bookshelf-service/bookshelf/config"
	"github.com/Astemirdum/bookshelf-service/bookshelf/internal/handler"
	"github.com/Astemirdum/bookshelf-service/bookshelf/internal/repository"
	"github.com/Astemirdum/bookshelf-service/bookshelf/internal/server"
	"github.com/Astemirdum/bookshelf-service/bookshelf/internal/service"
	"github.com/Astemirdum/bookshelf-service/bookshelf/migrations"
	"github.com/Astemirdum/bookshelf-service/pkg/logger"
	"github.com/Astemirdum/bookshelf-service/pkg/postgres"
	"github.com/Astemirdum/bookshelf-service/pkg/tracing"
)

func Run(cfg *config.Config) error {
	log := logger.NewLogger(cfg.Log, "bookshelf")
	defer log.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	shutdownTracing, err := tracing.Setup(ctx, cfg.Trace, "bookshelf")
	if err != nil {
		return errors.Wrap(err, "tracing init")
	}

	db, err := postgres.NewPostgresDB(ctx, &cfg.Database, migrations.MigrationFiles)
	if err != nil {
		return errors.Wrap(err, "db init")
	}
	defer db.Close()

	repo, err := repository.NewRepository(db, log)
	if err != nil {
		return errors.Wrap(err, "repo")
	}
	svc := service.NewService(repo, log)
	h := handler.New(svc, log,
		handler.WithStrictStatus(cfg.StrictStatus),
		handler.WithRateLimit(cfg.RPS),
		handler.WithSwagger(cfg.Swagger),
	)

	srv := server.NewServer(cfg.Server, h.NewRouter())
	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("http server start ON: ",
			zap.String("addr",
				net.JoinHostPort(cfg.Server.Host, cfg.Server.Port)))
		if err := srv.Run(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "server run")
		}
		return nil
	})
	g.Go(func() error {
		<-gCtx.Done()
		log.Debug("Graceful shutdown", zap.Error(context.Cause(gCtx)))

		closeCtx, cancel := context.WithTimeout(context.Background(), time.Second*5)
		defer cancel()
		if err := srv.Stop(closeCtx); err != nil {
			log.Error("srv.Stop", zap.Error(err))
		}
		if err := shutdownTracing(closeCtx); err != nil {
			log.Error("tracing shutdown", zap.Error(err))
		}
		return nil
	})

	err = g.Wait()
	log.Info("Graceful shutdown finished")
	return err
}
