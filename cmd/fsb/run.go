package main

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/everythingsuckz/streamgate/config"
	"github.com/everythingsuckz/streamgate/internal/bot"
	"github.com/everythingsuckz/streamgate/internal/chunkfetcher"
	"github.com/everythingsuckz/streamgate/internal/fleet"
	"github.com/everythingsuckz/streamgate/internal/logging"
	"github.com/everythingsuckz/streamgate/internal/propcache"
	"github.com/everythingsuckz/streamgate/internal/routes"
	"github.com/everythingsuckz/streamgate/internal/streamdriver"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the gateway with the given configuration.",
	Run:   runApp,
}

var startTime = time.Now()

func runApp(cmd *cobra.Command, args []string) {
	bootLog, _ := logging.New(logging.Options{Dev: true})
	bootLog.Info("starting server")
	config.Load(bootLog, cmd)

	log, err := logging.New(logging.Options{Dev: config.ValueOf.Dev, Level: config.ValueOf.LogLevel, FilePath: "logs/streamgate.log"})
	if err != nil {
		bootLog.Fatal("failed to initialize logger", zap.Error(err))
	}
	mainLog := log.Named("main")

	clientFleet, err := bot.StartFleet(
		config.ValueOf.UpstreamAPIID, config.ValueOf.UpstreamAPIHash, config.ValueOf.BotToken,
		config.ValueOf.ClientBotTokens, config.ValueOf.MultiClient,
		config.ValueOf.MaxStreamsPerDC, time.Duration(config.ValueOf.SessionIdleTimeout)*time.Second,
		config.ValueOf.GlobalStreamLimit, log,
	)
	if err != nil {
		mainLog.Fatal("failed to start client fleet", zap.Error(err))
	}

	backend := bot.NewBackend(clientFleet.Default(), config.ValueOf.StorageChannelID)
	propCache := propcache.New(backend, 100*1024*1024, log)
	cacheCronSpec := fmt.Sprintf("@every %ds", config.ValueOf.CacheTTLSeconds)
	if err := propCache.Start(cacheCronSpec); err != nil {
		mainLog.Fatal("failed to start cache flush schedule", zap.Error(err))
	}

	fetchers := buildFetchers(clientFleet, propCache, log)

	gw := &routes.Gateway{
		PropCache: propCache,
		Fleet:     clientFleet,
		ChunkSize: config.ValueOf.MaxChunk,
		StartTime: startTime,
		Version:   versionString,
		BotHandle: clientFleet.Default().Handle,
		NewDriver: func() *streamdriver.Driver {
			return streamdriver.New(clientFleet, fetchers, log)
		},
	}

	router := newRouter(log, gw)

	mainLog.Info("server started", zap.Int("port", config.ValueOf.Port), zap.String("version", versionString))
	mainLog.Sugar().Infof("listening at %s", config.ValueOf.PublicURLPrefix)

	addr := fmt.Sprintf("%s:%d", config.ValueOf.BindAddr, config.ValueOf.Port)
	if err := router.Run(addr); err != nil {
		mainLog.Fatal("server exited", zap.Error(err))
	}
}

func newRouter(log *zap.Logger, gw *routes.Gateway) *gin.Engine {
	if config.ValueOf.Dev {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	var router *gin.Engine
	if config.ValueOf.LogLevel == "error" || config.ValueOf.LogLevel == "warn" {
		router = gin.New()
		router.Use(gin.Recovery())
	} else {
		router = gin.Default()
	}

	routes.Load(log, router, gw)
	return router
}

// buildFetchers binds one chunkfetcher.Fetcher per fleet identity, wired to
// invalidate that msg_id's FilePropCache entry on a stale reference
// (spec.md §4.5, §7).
func buildFetchers(f *fleet.Fleet, cache *propcache.Cache, log *zap.Logger) map[int]*chunkfetcher.Fetcher {
	identities := f.All()
	fetchers := make(map[int]*chunkfetcher.Fetcher, len(identities))
	for _, id := range identities {
		fetchers[id.Index] = chunkfetcher.New(id.Pool, log, config.ValueOf.MinChunk, config.ValueOf.MaxRetries, cache.Invalidate)
	}
	return fetchers
}
