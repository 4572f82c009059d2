// README: Standalone dispatcher worker; runs the assignment loop without the HTTP API.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"takeout/internal/catalog"
	"takeout/internal/config"
	"takeout/internal/identity"
	"takeout/internal/infra"
	"takeout/internal/modules/dispatch"
	"takeout/internal/modules/order"
)

// The dispatcher can run beside the API process; the shared Postgres store
// and Redis claim board keep assignments exclusive across processes.
func main() {
	cfg := config.Load()
	log := config.NewLogger(cfg.Log)

	if cfg.DB.DSN == "" || cfg.Redis.Addr == "" {
		log.Fatal().Msg("standalone dispatcher requires TAKEOUT_DB_DSN and TAKEOUT_REDIS_ADDR")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := infra.NewDB(ctx, cfg.DB.DSN)
	if err != nil {
		log.Fatal().Err(err).Msg("database init")
	}
	defer pool.Close()

	directory := identity.NewClient(cfg.Upstream.UserServiceURL)
	provider := catalog.NewClient(cfg.Upstream.ProductServiceURL)
	orderSvc := order.NewService(order.NewPGStore(pool), directory, provider, log)

	board := dispatch.NewRedisBoard(infra.NewRedis(cfg.Redis.Addr))
	engine := dispatch.NewEngine(orderSvc, directory, board, cfg.Dispatch.Tick(), log)
	orderSvc.AttachDispatch(engine)

	log.Info().Msg("dispatcher running")
	engine.Run(ctx)
}
