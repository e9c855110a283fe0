package app

import (
	"context"
	"fmt"
	"strings"

	"lockstats/internal/aggregate"
	httpapi "lockstats/internal/api/http"
	"lockstats/internal/api/http/handlers"
	"lockstats/internal/api/http/mw"
	"lockstats/internal/config"
	"lockstats/internal/ledger"
	"lockstats/internal/metrics"
	"lockstats/internal/normalizer"
	"lockstats/internal/oracle"
	"lockstats/internal/pubsub/nats"
	"lockstats/internal/security"
	"lockstats/internal/service"
	"lockstats/internal/store"
	storeredis "lockstats/internal/store/redis"
	"lockstats/internal/stores/clickhouse"
	"lockstats/internal/stores/redis"
	"lockstats/internal/token"

	"github.com/grafana/pyroscope-go"
	lgcfg "gitlab.com/nevasik7/alerting/config"
	"gitlab.com/nevasik7/alerting/logger"
)

type Container struct {
	log logger.Logger
	app *App

	// infra, nil when not configured
	redis    *redis.Client
	ch       *clickhouse.Conn
	chWriter *clickhouse.Writer
	nc       *nats.Client

	dispatcher *service.Dispatcher

	// metrics
	profiler *pyroscope.Profiler
}

func (c *Container) Start() error {
	return c.app.Start()
}

func (c *Container) Stop(ctx context.Context) error {
	if err := c.app.Shutdown(ctx); err != nil {
		return fmt.Errorf("app shutdown is failed, error=%w", err)
	}
	return nil
}

type oracleSet struct {
	meta   oracle.MetadataProvider
	prices oracle.PriceOracle
}

func buildOracle(cfg *config.OracleConfig) (oracleSet, error) {
	switch cfg.Driver {
	case "http":
		o, err := oracle.NewHTTP(cfg.BaseURL, cfg.Timeout)
		if err != nil {
			return oracleSet{}, err
		}
		return oracleSet{meta: o, prices: o}, nil
	default:
		o, err := oracle.NewStatic(cfg.Tokens)
		if err != nil {
			return oracleSet{}, err
		}
		return oracleSet{meta: o, prices: o}, nil
	}
}

// Build constructs the whole process; cleanup releases whatever was opened, even after an error
func Build(ctx context.Context, cfg *config.Config) (*Container, func(), error) {
	lg := logger.New(lgcfg.LoggerCfg{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	lg.Info("Successfully initialize logger")

	c := &Container{log: lg}
	cleanup := func() {
		ctxClean, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
		defer cancel()

		if c.profiler != nil {
			if err := c.profiler.Stop(); err != nil {
				lg.Errorf("Failed to stop profiler: %v", err)
			}
		}
		if c.chWriter != nil {
			if err := c.chWriter.Close(ctxClean); err != nil {
				lg.Errorf("Failed to close by cleanup clickhouse writer: %v", err)
			}
		}
		if c.ch != nil {
			if err := c.ch.Close(); err != nil {
				lg.Errorf("Failed to close by cleanup clickhouse client: %v", err)
			}
		}
		if c.nc != nil {
			if err := c.nc.Close(); err != nil {
				lg.Errorf("Failed to close by cleanup nats client: %v", err)
			}
		}
		if c.redis != nil {
			if err := c.redis.Close(); err != nil {
				lg.Errorf("Failed to close by cleanup redis client: %v", err)
			}
		}

		lg.Info("Successfully cleaned up dependency")
	}

	if err := c.build(ctx, cfg); err != nil {
		cleanup()
		return nil, func() {}, err
	}

	lg.Info("Successfully initialize Wiring")
	return c, cleanup, nil
}

func (c *Container) build(ctx context.Context, cfg *config.Config) error {
	lg := c.log
	var err error

	if c.profiler, err = metrics.InitPProf(cfg.App.InstanceID, &cfg.Metrics.Pyroscope); err != nil {
		return fmt.Errorf("pyroscope initialize failed: %w", err)
	}
	if c.profiler != nil {
		lg.Infof("Successfully initialize Pyroscope to %s as %s", cfg.Metrics.Pyroscope.ServerAddr, cfg.Metrics.Pyroscope.AppName)
	}

	// Entity store
	var st store.Store
	switch cfg.Stores.Driver {
	case "memory":
		st = store.NewMemory()
		lg.Warn("Using in-memory entity store, state is lost on restart")
	default:
		if c.redis, err = redis.New(ctx, &cfg.Stores.Redis); err != nil {
			return fmt.Errorf("failed to initialize redis client: %w", err)
		}
		if st, err = storeredis.NewStore(lg, c.redis.Client, cfg.Stores.Redis.Prefix); err != nil {
			return err
		}
		lg.Infof("Successfully initialize redis store, addr=%s", cfg.Stores.Redis.Addr)
	}

	// ClickHouse archive
	var archive service.MovementArchive
	if cfg.Stores.ClickHouse.Enabled {
		if c.ch, err = clickhouse.New(ctx, &cfg.Stores.ClickHouse); err != nil {
			return fmt.Errorf("failed to initialize clickhouse client: %w", err)
		}
		if err = c.ch.EnsureSchema(ctx, cfg.Stores.ClickHouse.Table); err != nil {
			return err
		}
		if c.chWriter, err = clickhouse.NewWriter(lg, c.ch.Native, cfg.Stores.ClickHouse); err != nil {
			return err
		}
		archive = c.chWriter
		lg.Infof("Successfully initialize clickhouse writer, url=%s", strings.Split(cfg.Stores.ClickHouse.DSN, "?")[0])
	}

	// NATS
	if c.nc, err = nats.Connect(&cfg.PubSub.NATS, lg); err != nil {
		return err
	}
	broadcaster, err := nats.NewBroadcaster(c.nc, cfg.PubSub.NATS.BroadcastPrefix)
	if err != nil {
		return err
	}

	// Core
	orc, err := buildOracle(&cfg.Oracle)
	if err != nil {
		return fmt.Errorf("failed to initialize %s oracle: %w", cfg.Oracle.Driver, err)
	}
	resolver, err := token.NewResolver(lg, &cfg.Oracle, st, orc.meta, orc.prices)
	if err != nil {
		return err
	}
	norm, err := normalizer.New(lg, cfg.Protocol.TokenAddress, resolver)
	if err != nil {
		return err
	}
	userLedger, err := ledger.New(lg, st)
	if err != nil {
		return err
	}
	engine, err := aggregate.NewEngine(lg, st)
	if err != nil {
		return err
	}
	if c.dispatcher, err = service.NewDispatcher(lg, st, userLedger, norm, engine, archive, broadcaster); err != nil {
		return err
	}
	lg.Infof("Successfully initialize dispatcher, protocol token=%s", norm.ProtocolToken())

	consumer, err := nats.NewConsumer(c.nc, &cfg.PubSub.NATS, c.dispatcher, lg)
	if err != nil {
		return err
	}

	// HTTP
	h, err := handlers.NewHandler(lg, c.dispatcher)
	if err != nil {
		return err
	}

	mws := httpapi.Middlewares{Logging: mw.NewLogging(lg)}
	if cfg.API.HTTP.CORS.Enabled {
		if mws.CORS, err = mw.NewCORS(&cfg.API.HTTP.CORS); err != nil {
			return err
		}
	}

	var verifier *security.RS256Verifier
	if cfg.Security.JWT.Enabled {
		if verifier, err = security.NewRS256Verifier(&cfg.Security.JWT); err != nil {
			return err
		}
		if mws.JWT, err = mw.NewJWTMiddleware(lg, verifier); err != nil {
			return err
		}
		lg.Info("Successfully initialize JWT-Verifier")
	}
	if cfg.RateLimit.Enabled {
		if mws.RateLimit, err = mw.NewRateLimit(lg, &cfg.RateLimit, c.redis, verifier); err != nil {
			return err
		}
	}

	httpSrv, err := httpapi.NewServer(lg, &cfg.API.HTTP, httpapi.BuildRouter(h, mws))
	if err != nil {
		return err
	}
	lg.Info("Successfully initialize HTTP server")

	c.app = New(lg, httpSrv, consumer)
	return nil
}
