package main

import (
	"context"
	"os"
	"time"

	"go.uber.org/zap"

	"imposterserver/database"            //PostgreSQLとRedisの初期化、設定の読み込み
	"imposterserver/imposter"            //WebSocketのエントリポイント
	"imposterserver/imposter/connection" //接続の管理とメッセージのルーティング
	"imposterserver/imposter/game"       //ゲームロジック
	"imposterserver/migrations"          //テーブルの作成
	"imposterserver/models"              //モデル定義
	"imposterserver/repository"          //永続化層
	"imposterserver/screens"             //HTTPでのルーム照会
	"imposterserver/utils"               //ロガーの初期化とCronジョブ(放置ルームの削除)

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	logger, err := utils.InitLogger(os.Getenv("LOG_LEVEL")) // ロガーの初期化
	if err != nil {
		panic(err) // 失敗した場合はプログラム停止
	}
	defer logger.Sync() // ロガーのクリーンアップ

	config, err := database.LoadConfig("config.json")
	if err != nil {
		logger.Fatal("設定ファイルの読み込みに失敗しました", zap.Error(err))
	}

	repo, err := initRepository(config, logger)
	if err != nil {
		logger.Fatal("ストレージの初期化に失敗しました", zap.String("storage", config.Storage), zap.Error(err))
	}

	questions := game.DefaultQuestionBank()
	if config.QuestionsFile != "" {
		questions, err = game.LoadQuestionBank(config.QuestionsFile)
		if err != nil {
			logger.Fatal("質問ファイルの読み込みに失敗しました", zap.String("file", config.QuestionsFile), zap.Error(err))
		}
	}
	logger.Info("質問を読み込みました", zap.Int("count", questions.Len()))

	// アプリ全体のコンテキスト。WebSocketの処理はリクエストより長生きする
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	registry := connection.NewRegistry(logger)
	manager := game.NewManager(repo, registry, logger, game.Options{
		Questions:       questions,
		DefaultSettings: config.GameSettings(),
		ResultsDelay:    time.Duration(config.ResultsDelaySeconds) * time.Second,
		FinalDelay:      time.Duration(config.FinalDelaySeconds) * time.Second,
		MaxChatHistory:  config.MaxChatHistory,
	})
	wsRouter := connection.NewRouter(registry, manager, logger)
	upgrader := imposter.NewUpgrader(config.AllowOrigins)
	limits := connection.Limits{PerSecond: config.MessagesPerSecond, Burst: config.MessageBurst}

	// クーロンスケジューラのセットアップと呼び出し
	cleaner, err := utils.CronCleaner(manager, config.CleanupSchedule, time.Duration(config.RoomIdleMinutes)*time.Minute, logger)
	if err != nil {
		logger.Fatal("Cronジョブの登録に失敗しました", zap.String("schedule", config.CleanupSchedule), zap.Error(err))
	}
	defer cleaner.Stop()

	router := gin.New()
	//リクエストロガーを起動
	router.Use(gin.Recovery(), utils.RequestLogger(logger))

	//CORS（Cross-Origin Resource Sharing）ポリシーを設定
	router.Use(cors.New(cors.Config{
		AllowOrigins:     config.AllowOrigins,
		AllowMethods:     []string{"GET"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	//各HTTPリクエストのルーティング
	router.GET("/ws", func(c *gin.Context) {
		imposter.HandleConnections(ctx, c.Writer, c.Request, registry, wsRouter, upgrader, limits, logger)
	})
	router.GET("/api/rooms/:code", func(c *gin.Context) {
		screens.RoomInfo(c, repo, logger)
	})
	router.GET("/healthz", func(c *gin.Context) {
		screens.Health(c, manager.RoomCount(), registry.Count())
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	logger.Info("サーバーを起動します", zap.String("addr", config.ServerAddr), zap.String("storage", config.Storage))
	if err := router.Run(config.ServerAddr); err != nil {
		logger.Fatal("サーバーの起動に失敗しました", zap.Error(err))
	}
}

// 設定に応じて永続化層を選ぶ。デフォルトはインメモリ
func initRepository(config models.Config, logger *zap.Logger) (repository.Repository, error) {
	switch config.Storage {
	case "postgres":
		db, err := database.InitPostgreSQL(config, logger)
		if err != nil {
			return nil, err
		}
		if err := migrations.AutoMigrate(db, logger); err != nil {
			return nil, err
		}
		return repository.NewGormRepository(db), nil
	case "redis":
		rdb, err := database.InitRedis(config, logger)
		if err != nil {
			return nil, err
		}
		return repository.NewRedisRepository(rdb), nil
	default:
		return repository.NewMemoryRepository(), nil
	}
}
