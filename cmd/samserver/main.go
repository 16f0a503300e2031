package main

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"github.com/getcharzp/go-sam"
	"github.com/getcharzp/go-sam/config"
	"github.com/getcharzp/go-sam/mask"
	"github.com/getcharzp/go-sam/server"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	// 加载配置
	cfg := config.New()

	// 初始化日志
	logger, err := sam.NewLogger(cfg.Server.Mode)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	sam.SetLogger(logger)
	defer logger.Sync()

	logger.Info("starting sam server",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
		zap.String("git_commit", GitCommit),
		zap.String("model", cfg.Model.Family))

	// 初始化推理引擎
	segmenter, err := server.NewSegmenter(cfg.Model)
	if err != nil {
		logger.Fatal("failed to create segmenter", zap.Error(err))
	}
	defer segmenter.Destroy()

	// 初始化渲染器
	drawer, err := sam.NewLabelDrawer(cfg.Render.FontPath, cfg.Render.FontSize)
	if err != nil {
		logger.Fatal("failed to load font", zap.Error(err))
	}
	defer drawer.Close()
	renderer := mask.NewRenderer(drawer)
	renderer.Alpha = cfg.Render.Alpha
	renderer.Workers = cfg.Render.Workers

	// 初始化Redis
	var cache server.ResultCache
	if cfg.Redis.Enabled {
		redisCache := server.NewRedisCache(&cfg.Redis)
		defer redisCache.Close()
		if err := redisCache.Ping(context.Background()); err != nil {
			logger.Warn("redis connection failed, cache disabled", zap.Error(err))
		} else {
			logger.Info("redis connected successfully")
			cache = redisCache
		}
	}

	// 设置Gin模式
	gin.SetMode(cfg.Server.Mode)
	h := server.NewHandler(segmenter, renderer, cache, cfg.Server.MaxImageSize)

	srv := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      h.Router(Version),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// 启动服务器
	logger.Info("server starting", zap.String("port", cfg.Server.Port))
	if err := srv.ListenAndServe(); err != nil {
		logger.Fatal("failed to start server", zap.Error(err))
	}
}
