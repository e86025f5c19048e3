package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/Martian-dev/mailpoll/internal/auth"
	"github.com/Martian-dev/mailpoll/internal/config"
	"github.com/Martian-dev/mailpoll/internal/credential"
	"github.com/Martian-dev/mailpoll/internal/eventstore/sqlite"
	"github.com/Martian-dev/mailpoll/internal/httpapi"
	"github.com/Martian-dev/mailpoll/internal/logging"
	"github.com/Martian-dev/mailpoll/internal/mailops"
	"github.com/Martian-dev/mailpoll/internal/mq"
	natsjs "github.com/Martian-dev/mailpoll/internal/nats"
	"github.com/Martian-dev/mailpoll/internal/platform"
	"github.com/Martian-dev/mailpoll/internal/providers/outlook"
	"github.com/Martian-dev/mailpoll/internal/redisstate"
	"github.com/Martian-dev/mailpoll/internal/sync"
)

func main() {
	fs := pflag.NewFlagSet("mailpoll", pflag.ExitOnError)
	config.Flags(fs)
	_ = fs.Parse(os.Args[1:])

	path, _ := fs.GetString("config")
	once, _ := fs.GetBool("once")

	cfg, err := config.Load(path, fs)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger, once); err != nil {
		logger.Error("mailpoll stopped", zap.Error(err))
		stop()
		logger.Sync()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger, once bool) error {
	tokens, err := tokenSource(ctx, cfg.Auth)
	if err != nil {
		return err
	}
	mailbox, err := outlook.New(&auth.TokenCredential{Source: tokens}, cfg.Mailbox, cfg.RequestTimeout)
	if err != nil {
		return err
	}

	events, err := sqlite.Open(cfg.State.Path, cfg.Publish.Subject)
	if err != nil {
		return err
	}
	defer events.Close()

	var plat platform.Platform = events
	if cfg.State.Driver == config.StateRedis {
		redis := redisstate.New(redisstate.Options{
			Addr:     cfg.State.Redis.Addr,
			Password: cfg.State.Redis.Password,
			DB:       cfg.State.Redis.DB,
		})
		defer redis.Close()
		if err := redis.Ping(ctx); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		plat = platform.Combine(redis, events)
	}

	publisher, closePublisher, err := newPublisher(ctx, cfg.Publish)
	if err != nil {
		return err
	}
	defer closePublisher()

	var dispatcher *sync.Dispatcher
	if publisher != nil {
		dispatcher = &sync.Dispatcher{Outbox: events, Publisher: publisher, Logger: logger}
	}

	runners := make([]*sync.Runner, 0, len(cfg.Instances))
	for _, inst := range cfg.Instances {
		runners = append(runners, &sync.Runner{
			Instance: sync.Instance{
				Name:       inst.Name,
				Folder:     inst.Folder,
				MaxFetch:   inst.MaxFetch,
				MarkAsRead: inst.MarkAsRead,
			},
			Store:    mailbox,
			Platform: plat,
			Logger:   logger,
		})
	}
	manager := sync.NewManager(logger, dispatcher, runners...)

	if once {
		_, err := manager.TickAll(ctx)
		if _, derr := manager.Dispatch(ctx, sync.DispatchBatch); derr != nil {
			err = errors.Join(err, derr)
		}
		return err
	}

	verifier, err := newVerifier(ctx, cfg.Server)
	if err != nil {
		return err
	}

	server := &httpapi.Server{
		Manager:  manager,
		Ops:      mailops.New(mailbox, cfg.Mailbox, logger),
		Folder:   cfg.Instances[0].Folder,
		Verifier: verifier,
		Log:      events,
		Logger:   logger,
	}
	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", zap.String("addr", cfg.Server.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func tokenSource(ctx context.Context, cfg config.AuthConfig) (oauth2.TokenSource, error) {
	if cfg.Mode == config.AuthBetterAuth {
		return auth.NewBetterAuthClient(cfg.BetterAuthURL).TokenSource(ctx, cfg.UserJWT), nil
	}
	secret, err := credential.Default.Resolve(cfg.ClientSecret)
	if err != nil {
		return nil, err
	}
	return auth.ClientCredentials(ctx, cfg.TenantID, cfg.ClientID, secret), nil
}

func newPublisher(ctx context.Context, cfg config.PublishConfig) (sync.Publisher, func(), error) {
	switch cfg.Driver {
	case config.PublishNATS:
		p, err := natsjs.NewPublisher(cfg.URL, cfg.Subject)
		if err != nil {
			return nil, nil, err
		}
		if err := p.EnsureStream(ctx); err != nil {
			p.Close()
			return nil, nil, err
		}
		return p, p.Close, nil
	case config.PublishAMQP:
		p, err := mq.NewPublisher(cfg.URL)
		if err != nil {
			return nil, nil, err
		}
		return p, p.Close, nil
	}
	return nil, func() {}, nil
}

func newVerifier(ctx context.Context, cfg config.ServerConfig) (auth.Verifier, error) {
	switch {
	case cfg.JWKSURL != "":
		return auth.NewJWKSVerifier(ctx, cfg.JWKSURL)
	case cfg.HMACSecret != "":
		return auth.NewHMACVerifier(cfg.HMACSecret), nil
	}
	return nil, nil
}
