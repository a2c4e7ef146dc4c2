package main

import (
	"context"
	"time"

	"github.com/cppla/schoolgate/config"
	"github.com/cppla/schoolgate/livefeed"
	"github.com/cppla/schoolgate/models"
	"github.com/cppla/schoolgate/routes"
	"github.com/cppla/schoolgate/services"
	"github.com/cppla/schoolgate/utils"
)

func main() {
	cfg := config.Load()

	if err := utils.InitLogger(cfg); err != nil {
		panic(err)
	}
	defer func() { _ = utils.Logger.Sync() }()

	services.SetUTCOffset(cfg.TimezoneOffsetMinutes)

	db := config.InitDatabase(models.All()...)

	hub := livefeed.NewHub(utils.Logger.Named("live"), cfg.AllowedOrigins)

	opts := []services.Option{
		services.WithLogger(utils.Logger.Named("engine")),
		services.WithPublisher(hub),
		services.WithSettingsCache(time.Duration(cfg.SettingsCacheTTLSeconds) * time.Second),
	}
	if ln := utils.NewLineNotifier(cfg, services.Location()); ln != nil {
		opts = append(opts, services.WithNotifier(ln))
	} else {
		utils.Sugar.Info("LINE channel not configured, guardian notifications disabled")
	}
	engine := services.NewEngine(db, opts...)

	if err := engine.EnsureAdmin(context.Background(), cfg.AdminUsername, cfg.AdminPassword, cfg.DefaultSiteID); err != nil {
		utils.Sugar.Fatalf("seed admin: %v", err)
	}

	hooks := []func(){hub.Close, engine.WaitNotifications, utils.CloseRedis}
	if cfg.AutoExitEnabled {
		sweeper := services.NewAutoExitSweeper(engine, time.Duration(cfg.AutoExitIntervalSec)*time.Second, "")
		sweeper.Start(context.Background())
		hooks = append([]func(){sweeper.Stop}, hooks...)
	}

	r := routes.SetupRouter(db, engine, hub)

	utils.Sugar.Infof("Starting server on port %s (graceful)", cfg.AppPort)
	if err := utils.GraceServer(":"+cfg.AppPort, r, hooks...); err != nil {
		utils.Sugar.Fatalf("server stopped with error: %v", err)
	}
}
