// Package main 是应用程序的入口点。
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"ragpipe-go/internal/config"
	"ragpipe-go/internal/handler"
	"ragpipe-go/internal/middleware"
	"ragpipe-go/internal/pipeline"
	"ragpipe-go/internal/repository"
	"ragpipe-go/internal/service"
	"ragpipe-go/pkg/database"
	"ragpipe-go/pkg/embedding"
	"ragpipe-go/pkg/kafka"
	"ragpipe-go/pkg/llm"
	"ragpipe-go/pkg/log"
	"ragpipe-go/pkg/storage"
	"ragpipe-go/pkg/tika"
	"ragpipe-go/pkg/token"
	"ragpipe-go/pkg/vector"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

func main() {
	// 1. 初始化配置
	config.Init("./configs/config.yaml")
	cfg := config.Conf

	// 2. 初始化日志记录器
	log.Init(cfg.Log.Level, cfg.Log.Format, cfg.Log.OutputPath)
	defer log.Sync() // 确保在程序退出时刷新所有缓冲的日志条目
	log.Info("日志记录器初始化成功")

	// 3. 初始化数据库、Redis、对象存储与向量索引
	db, err := database.InitMySQL(cfg.Database.MySQL.DSN)
	if err != nil {
		log.Fatal("failed to connect database", err)
	}
	rdb, err := database.InitRedis(cfg.Database.Redis.Addr, cfg.Database.Redis.Password, cfg.Database.Redis.DB)
	if err != nil {
		log.Fatal("failed to connect to redis", err)
	}
	storageClient, err := storage.NewClient(cfg.MinIO)
	if err != nil {
		log.Fatal("初始化 MinIO 客户端失败", err)
	}
	vectorClient, err := vector.NewClient(cfg.Vector)
	if err != nil {
		log.Fatal("初始化向量索引失败", err)
	}
	producer := kafka.NewProducer(cfg.Kafka)
	defer producer.Close()

	// 4. 初始化 Repository
	ingestionRepo := repository.NewIngestionRepository(db)
	collectionRepo := repository.NewCollectionRepository(db)
	conversationRepo := repository.NewConversationRepository(rdb)

	// 5. 初始化 Service (依赖注入)
	jwtManager := token.NewJWTManager(cfg.JWT.Secret, cfg.JWT.AccessTokenExpireHours)
	tikaClient := tika.NewClient(cfg.Tika)
	embeddingClient := embedding.NewClient(cfg.Embedding)
	llmClient := llm.NewClient(cfg.LLM)

	tokenCounter, err := pipeline.NewTokenCounter(cfg.Ingest.TokenEncoding)
	if err != nil {
		log.Fatal("初始化 token 计数器失败", err)
	}
	extractor := pipeline.NewExtractor(llmClient)

	// 6. 初始化导入管道 (Ingestor)
	ingestor := pipeline.NewIngestor(
		tikaClient,
		extractor,
		embeddingClient,
		vectorClient,
		ingestionRepo,
		tokenCounter,
		cfg.Ingest,
	)

	ingestService := service.NewIngestService(ingestor, vectorClient, ingestionRepo, storageClient, producer)
	retrievalService := service.NewRetrievalService(embeddingClient, vectorClient)
	chatService := service.NewChatService(retrievalService, llmClient, conversationRepo, cfg.Chat)
	adminService := service.NewAdminService(collectionRepo, ingestionRepo, jwtManager, cfg.Admin)

	// 7. 启动后台 Kafka 消费者
	go kafka.StartConsumer(cfg.Kafka, ingestService, rdb)

	// 7.1 导入 initdocs 目录下的种子文档（幂等，已导入则跳过）
	seedCtx, cancelSeed := context.WithCancel(context.Background())
	defer cancelSeed()
	go seedDocuments(seedCtx, "initdocs", ingestService, ingestionRepo)

	// 8. 设置 Gin 模式并创建路由引擎
	gin.SetMode(cfg.Server.Mode)
	r := gin.New() // 使用 New() 创建一个不带默认中间件的引擎
	// 添加我们自定义的日志中间件和 Gin 的 Recovery 中间件
	r.Use(middleware.RequestLogger(), gin.Recovery())
	// CORS 白名单
	if len(cfg.CORS.AllowedOrigins) > 0 {
		corsCfg := cors.DefaultConfig()
		corsCfg.AllowOrigins = cfg.CORS.AllowedOrigins
		corsCfg.AllowHeaders = append(corsCfg.AllowHeaders, "Authorization")
		r.Use(cors.New(corsCfg))
	}

	// 9. 注册路由
	uploadHandler := handler.NewUploadHandler(ingestService)
	deleteHandler := handler.NewDeleteHandler(ingestService)
	chatHandler := handler.NewChatHandler(chatService)
	authHandler := handler.NewAuthHandler(adminService)
	adminHandler := handler.NewAdminHandler(adminService)

	apiV1 := r.Group("/api/v1")
	{
		// Auth 路由组
		auth := apiV1.Group("/auth")
		{
			auth.POST("/login", authHandler.Login)
		}

		// Upload 路由组
		upload := apiV1.Group("/upload")
		{
			upload.POST("/text", uploadHandler.UploadText)
			upload.POST("/pdf", uploadHandler.UploadPDF)
			upload.POST("/qna", uploadHandler.UploadQnA)
			upload.POST("/raw", uploadHandler.UploadRaw)
			upload.POST("/async", uploadHandler.UploadAsync)
		}

		// Delete 路由
		apiV1.POST("/delete", deleteHandler.DeleteRange)
		apiV1.POST("/delete/document", deleteHandler.DeleteDocument)

		// Chat 路由
		apiV1.POST("/chat", chatHandler.Chat)
		apiV1.POST("/chat/direct", chatHandler.ChatDirect)
		apiV1.GET("/chat/stream/:token", chatHandler.HandleStream)

		// 管理员路由组，需要通过 JWT 认证且角色为 ADMIN
		admin := apiV1.Group("/admin")
		admin.Use(middleware.AdminAuthMiddleware(jwtManager))
		{
			collections := admin.Group("/collections")
			{
				collections.POST("", adminHandler.CreateCollection)
				collections.GET("", adminHandler.ListCollections)
				collections.DELETE("/:id", adminHandler.DeleteCollection)
				collections.GET("/:id/documents", adminHandler.ListCollectionDocuments)
			}
			admin.GET("/documents", adminHandler.ListDocuments)
		}
	}

	// 启动 HTTP 服务器并实现优雅停机
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: r,
	}

	go func() {
		log.Infof("服务启动于 %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP 服务监听失败: %s\n", err)
		}
	}()

	// 等待中断信号以实现优雅停机
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("接收到停机信号，正在关闭服务...")

	// 设置一个5秒的超时上下文
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// 关闭 HTTP 服务器
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("HTTP 服务器关闭失败: %v", err)
	}

	log.Info("服务已优雅关闭")
}

// seedDocuments 扫描目录下文件并通过标准导入流程导入（幂等）。
// 名称取文件名去掉扩展名，已有同名登记记录则跳过。
func seedDocuments(ctx context.Context, dir string, ingestSvc service.IngestService, ingestionRepo repository.IngestionRepository) {
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		log.Infof("seedDocuments: 目录 '%s' 不存在或不可用，跳过初始化导入", dir)
		return
	}

	walkErr := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		name := strings.TrimSuffix(info.Name(), filepath.Ext(info.Name()))

		// 幂等检查：已有同名登记记录则跳过
		if _, findErr := ingestionRepo.FindByName(name); findErr == nil {
			log.Infof("seedDocuments: 已存在，跳过: %s", name)
			return nil
		} else if findErr != gorm.ErrRecordNotFound {
			log.Warnf("seedDocuments: 查询登记记录失败: %s, err=%v", name, findErr)
			return nil
		}

		f, err := os.Open(path)
		if err != nil {
			log.Warnf("seedDocuments: 打开文件失败: %s, err=%v", path, err)
			return nil
		}
		defer f.Close()

		result, err := ingestSvc.IngestFile(ctx, f, info.Name(), pipeline.IngestRequest{
			Name:        name,
			Restructure: true,
		})
		if err != nil {
			log.Warnf("seedDocuments: 导入失败: %s, err=%v", path, err)
			return nil
		}
		log.Infof("seedDocuments: 导入完成: %s, 共 %d 条向量", name, result.VectorCount)
		return nil
	})
	if walkErr != nil && walkErr != context.Canceled {
		log.Warnf("seedDocuments: 遍历目录发生错误: %v", walkErr)
	}
}
