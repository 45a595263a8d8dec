package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"storozh.org/internal/audit"
	"storozh.org/internal/auth"
	"storozh.org/internal/config"
	"storozh.org/internal/httpapi"
	"storozh.org/internal/migrate"
	"storozh.org/internal/moderation"
	"storozh.org/internal/mute"
	"storozh.org/internal/obs"
	"storozh.org/internal/platform"
	"storozh.org/internal/quorum"
	"storozh.org/internal/roles"
	"storozh.org/internal/store/memory"
	"storozh.org/internal/store/pg"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

// store is what the service needs from either persistence backend.
type store interface {
	roles.Store
	mute.Store
	audit.Store
	Ping(ctx context.Context) error
}

func main() {
	dryRun := flag.Bool("dry-run", false, "log platform calls instead of sending them")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	// Инициализация observability (регистрация метрик, JSON-логгер и т.п.)
	obs.SetLevel(cfg.LogLevel)
	obs.Init()
	obs.InitBuildInfo(version, commit)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, *dryRun); err != nil {
		obs.Error("storozh stopped with error", map[string]any{"error": err})
		os.Exit(1)
	}
	obs.Info("storozh stopped", nil)
}

func run(ctx context.Context, cfg config.Config, dryRun bool) error {
	st, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	client, err := platformClient(cfg, dryRun)
	if err != nil {
		return err
	}

	auditLog, err := audit.New(st, audit.Policy{
		Primary:     cfg.Audit.PrimaryWindow,
		Archive:     cfg.Audit.ArchiveWindow,
		KeepArchive: cfg.Audit.Archive,
		Interval:    cfg.Audit.SweepInterval,
	})
	if err != nil {
		return fmt.Errorf("audit: %w", err)
	}

	scheduler, err := mute.NewScheduler(st, client, auditLog, mute.WithCallTimeout(cfg.CallTimeout))
	if err != nil {
		return fmt.Errorf("mute scheduler: %w", err)
	}
	// Mutes must be re-armed before the first command is accepted.
	if _, err := scheduler.Recover(ctx); err != nil {
		return fmt.Errorf("recover mutes: %w", err)
	}
	defer scheduler.Shutdown()

	q := quorum.New(
		quorum.WithWindow(cfg.Quorum.Window),
		quorum.WithRequireDistinct(cfg.Quorum.RequireDistinct),
	)
	roleSvc, err := roles.NewService(st)
	if err != nil {
		return err
	}
	svc, err := moderation.NewService(moderation.Deps{
		Roles:  roleSvc,
		Mutes:  scheduler,
		Audit:  auditLog,
		Quorum: q,
		Client: client,
	},
		moderation.WithDefaultMute(cfg.DefaultMute),
		moderation.WithBypassRole(roles.Role(cfg.Quorum.BypassRole)),
	)
	if err != nil {
		return err
	}

	var signer *auth.Signer
	if cfg.AuthSecret != "" {
		if signer, err = auth.NewSigner(cfg.AuthSecret); err != nil {
			return err
		}
	} else {
		obs.Warn("auth_secret is empty: HTTP API runs without authentication", nil)
	}

	probe := httpapi.ReadyProbe{Ping: st.Ping}
	api := httpapi.New(svc, probe, signer, version)
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	grpcSrv := grpc.NewServer()
	healthSrv := httpapi.NewHealthServer(probe)
	healthSrv.Register(grpcSrv)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		auditLog.Run(gctx)
		return nil
	})
	g.Go(func() error {
		q.Run(gctx, cfg.Quorum.Window)
		return nil
	})
	g.Go(func() error {
		healthSrv.Run(gctx, 15*time.Second)
		return nil
	})
	g.Go(func() error {
		obs.Info("http listening", map[string]any{"addr": srv.Addr, "version": version})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		lis, err := net.Listen("tcp", cfg.GRPCAddr)
		if err != nil {
			return fmt.Errorf("grpc listen: %w", err)
		}
		obs.Info("grpc listening", map[string]any{"addr": cfg.GRPCAddr})
		if err := grpcSrv.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			return fmt.Errorf("grpc: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		obs.Info("shutting down", nil)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		grpcSrv.GracefulStop()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func openStore(ctx context.Context, cfg config.Config) (store, func(), error) {
	if cfg.DatabaseDSN == "" {
		obs.Warn("database_dsn is empty: using in-memory store, state is lost on restart", nil)
		return memory.New(), func() {}, nil
	}
	st, err := pg.Open(cfg.DatabaseDSN)
	if err != nil {
		return nil, nil, fmt.Errorf("open db: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := st.Ping(pingCtx); err != nil {
		_ = st.Close()
		return nil, nil, fmt.Errorf("ping db: %w", err)
	}
	applied, err := migrate.NewManager(st.DB(), nil).Up(ctx)
	if err != nil {
		_ = st.Close()
		return nil, nil, fmt.Errorf("migrate: %w", err)
	}
	if len(applied) > 0 {
		obs.Info("migrations applied", map[string]any{"migrations": applied})
	}
	return st, func() { _ = st.Close() }, nil
}

func platformClient(cfg config.Config, dryRun bool) (platform.Client, error) {
	var next platform.Client = platform.DryRun{}
	switch {
	case dryRun:
	case cfg.GatewayURL == "":
		obs.Warn("gateway_url is empty: platform calls are only logged", nil)
	default:
		gw, err := platform.NewGateway(cfg.GatewayURL, cfg.GatewayToken, cfg.CallTimeout)
		if err != nil {
			return nil, fmt.Errorf("platform gateway: %w", err)
		}
		next = gw
	}
	return platform.NewLimited(next, float64(cfg.PlatformRatePerSec), cfg.PlatformRateBurst), nil
}
