package serve

import (
	"context"
	"errors"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/chirino/conversation-cache/internal/adapter"
	"github.com/chirino/conversation-cache/internal/cmd/cmdutil"
	"github.com/chirino/conversation-cache/internal/config"
	"github.com/chirino/conversation-cache/internal/merge"
	"github.com/chirino/conversation-cache/internal/query"
	"github.com/chirino/conversation-cache/internal/realtime"
	registryroute "github.com/chirino/conversation-cache/internal/registry/route"
	registrystore "github.com/chirino/conversation-cache/internal/registry/store"
	"github.com/chirino/conversation-cache/internal/security"
	"github.com/chirino/conversation-cache/internal/service"
	"github.com/chirino/conversation-cache/internal/snapshot"
	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	_ "github.com/chirino/conversation-cache/internal/plugin/route/conversations"
	_ "github.com/chirino/conversation-cache/internal/plugin/route/ingestion"
	_ "github.com/chirino/conversation-cache/internal/plugin/route/system"
)

// Server holds the running server and its subsystems.
type Server struct {
	Config     *config.Config
	Store      registrystore.RecordStore
	Router     *gin.Engine
	Main       *Listener
	Management *Listener

	stopBackground context.CancelFunc
	background     *errgroup.Group
}

// Shutdown stops the background workers, then the listeners, then closes the store.
func (s *Server) Shutdown(ctx context.Context) error {
	s.stopBackground()
	bgDone := make(chan error, 1)
	go func() { bgDone <- s.background.Wait() }()

	var errs []error
	select {
	case err := <-bgDone:
		if err != nil {
			errs = append(errs, err)
		}
	case <-ctx.Done():
		errs = append(errs, fmt.Errorf("background workers did not stop: %w", ctx.Err()))
	}

	if s.Management != nil {
		errs = append(errs, s.Management.Close(ctx))
	}
	errs = append(errs, s.Main.Close(ctx))
	if s.Store != nil {
		errs = append(errs, s.Store.Close())
	}
	return errors.Join(errs...)
}

// StartServer initializes all subsystems and starts listening.
// Use cfg.Listener.Port=0 for a random port. Actual port: Server.Main.Port.
func StartServer(ctx context.Context, cfg *config.Config) (*Server, error) {
	log.Info("Starting conversation cache",
		"httpPort", cfg.Listener.Port,
		"db", cfg.DatastoreType,
		"cache", cfg.CacheType,
		"adapter", cfg.AdapterMode,
	)

	if err := cmdutil.InitMetrics(cfg); err != nil {
		return nil, err
	}

	// Remote mode proxies queries and owns no data.
	svc := &registryroute.Services{}
	var store registrystore.RecordStore
	if cfg.AdapterMode != config.AdapterModeRemote {
		var err error
		store, err = cmdutil.OpenStore(ctx, cfg)
		if err != nil {
			return nil, err
		}
		svc.Engine = query.NewEngine(store, query.WithDefaultLimit(cfg.DefaultPageSize))
		svc.Merger = merge.NewMerger(store)
		svc.Ingestor = snapshot.NewIngestor(svc.Merger, cfg)
		svc.Probe = func(ctx context.Context) error {
			_, err := store.GetWatermark(ctx)
			return err
		}
	}
	closeStore := func() {
		if store != nil {
			_ = store.Close()
		}
	}

	a, err := adapter.New(cfg, svc.Engine)
	if err != nil {
		closeStore()
		return nil, err
	}
	svc.Adapter = a

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	if cfg.ManagementAccessLog {
		router.Use(security.AccessLogMiddleware())
	} else {
		router.Use(security.AccessLogMiddleware("/health", "/ready", "/metrics"))
	}
	router.Use(security.MetricsMiddleware())
	router.Use(maxBodySizeMiddleware(cfg.MaxBodySize))
	if cfg.CORSEnabled {
		router.Use(corsMiddleware(cfg.CORSOrigins))
	}

	if err := registryroute.Mount(router, registryroute.SurfaceAPI, svc); err != nil {
		closeStore()
		return nil, err
	}

	// Management routes get their own listener when a port is configured,
	// otherwise they share the main router.
	var management *Listener
	if cfg.ManagementListenerEnabled {
		mgmtRouter := gin.New()
		mgmtRouter.Use(gin.Recovery())
		if cfg.ManagementAccessLog {
			mgmtRouter.Use(security.AccessLogMiddleware())
		}
		if err := registryroute.Mount(mgmtRouter, registryroute.SurfaceManagement, svc); err != nil {
			closeStore()
			return nil, err
		}
		mgmtCfg := cfg.ManagementListener
		mgmtCfg.TLSCertFile = cfg.Listener.TLSCertFile
		mgmtCfg.TLSKeyFile = cfg.Listener.TLSKeyFile
		management, err = startListener("management", mgmtCfg, mgmtRouter)
		if err != nil {
			closeStore()
			return nil, fmt.Errorf("failed to start management server: %w", err)
		}
		log.Info("Management server listening", "addr", management.Addr)
	} else if err := registryroute.Mount(router, registryroute.SurfaceManagement, svc); err != nil {
		closeStore()
		return nil, err
	}

	mainLis, err := startListener("main", cfg.Listener, router)
	if err != nil {
		if management != nil {
			_ = management.Close(context.Background())
		}
		closeStore()
		return nil, err
	}
	log.Info("Server listening",
		"port", mainLis.Port,
		"plaintext", cfg.Listener.EnablePlainText,
		"tls", cfg.Listener.EnableTLS,
	)

	bgCtx, stopBackground := context.WithCancel(context.WithoutCancel(ctx))
	background := startBackground(bgCtx, cfg, svc.Merger, svc.Ingestor)

	svc.Started.Store(true)
	return &Server{
		Config:         cfg,
		Store:          store,
		Router:         router,
		Main:           mainLis,
		Management:     management,
		stopBackground: stopBackground,
		background:     background,
	}, nil
}

// startBackground launches the snapshot scheduler and the realtime
// subscriber when configured. A subscriber failure is logged and does not
// stop the scheduler.
func startBackground(ctx context.Context, cfg *config.Config, merger *merge.Merger, ingestor *snapshot.Ingestor) *errgroup.Group {
	g := &errgroup.Group{}
	if merger == nil {
		return g
	}

	if cfg.SnapshotURL != "" {
		scheduler := service.NewSnapshotScheduler(ingestor, cfg.SnapshotInterval)
		g.Go(func() error {
			scheduler.Start(ctx)
			return nil
		})
	} else {
		log.Info("Snapshot scheduler disabled (no --snapshot-url)")
	}

	if cfg.RealtimeNATSURL != "" {
		sub := &realtime.Subscriber{
			URL:     cfg.RealtimeNATSURL,
			Subject: cfg.RealtimeNATSSubject,
			Queue:   cfg.RealtimeNATSQueue,
			Applier: merger,
		}
		g.Go(func() error {
			if err := sub.Run(ctx); err != nil {
				log.Error("Realtime subscriber stopped", "err", err)
			}
			return nil
		})
	}
	return g
}
