// README: Entry point; loads config, wires services, starts HTTP server and the dispatch loop.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"takeout/internal/catalog"
	"takeout/internal/config"
	httptransport "takeout/internal/http"
	"takeout/internal/identity"
	"takeout/internal/infra"
	"takeout/internal/modules/dispatch"
	"takeout/internal/modules/order"
)

func main() {
	cfg := config.Load()
	log := config.NewLogger(cfg.Log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	directory := identity.NewClient(cfg.Upstream.UserServiceURL)
	provider := catalog.NewClient(cfg.Upstream.ProductServiceURL)

	var store order.Store
	if cfg.DB.DSN != "" {
		pool, err := infra.NewDB(ctx, cfg.DB.DSN)
		if err != nil {
			log.Fatal().Err(err).Msg("database init")
		}
		defer pool.Close()
		store = order.NewPGStore(pool)
	} else {
		log.Warn().Msg("no DB DSN configured; using in-memory order store")
		store = order.NewMemStore()
	}

	var board dispatch.Board
	if cfg.Redis.Addr != "" {
		board = dispatch.NewRedisBoard(infra.NewRedis(cfg.Redis.Addr))
	} else {
		log.Warn().Msg("no Redis address configured; using in-memory claim board")
		board = dispatch.NewMemBoard()
	}

	orderSvc := order.NewService(store, directory, provider, log)
	engine := dispatch.NewEngine(orderSvc, directory, board, cfg.Dispatch.Tick(), log)
	orderSvc.AttachDispatch(engine)

	go engine.Run(ctx)

	server := &http.Server{
		Addr:    cfg.HTTP.Addr,
		Handler: httptransport.NewRouter(orderSvc, engine, log),
	}
	go func() {
		<-ctx.Done()
		_ = server.Shutdown(context.Background())
	}()

	log.Info().Str("addr", cfg.HTTP.Addr).Msg("order service listening")
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal().Err(err).Msg("http server")
	}
}
