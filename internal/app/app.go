package app

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"

	"github.com/hitoshi/notehub/internal/channel"
	"github.com/hitoshi/notehub/internal/config"
	"github.com/hitoshi/notehub/internal/database"
	"github.com/hitoshi/notehub/internal/delivery"
	"github.com/hitoshi/notehub/internal/destination"
	"github.com/hitoshi/notehub/internal/entry"
	"github.com/hitoshi/notehub/internal/handler"
	"github.com/hitoshi/notehub/internal/logger"
	"github.com/hitoshi/notehub/internal/mail"
	"github.com/hitoshi/notehub/internal/metrics"
	"github.com/hitoshi/notehub/internal/middleware"
	"github.com/hitoshi/notehub/internal/model"
	"github.com/hitoshi/notehub/internal/notify"
	"github.com/hitoshi/notehub/internal/repository"
	"github.com/hitoshi/notehub/internal/security"
	"github.com/hitoshi/notehub/internal/staging"
	"github.com/hitoshi/notehub/internal/webhook"
	"github.com/hitoshi/notehub/internal/worker/cleanup"
)

// Init はアプリケーションの初期化を行う。
// .envファイルがあれば読み込み、環境変数からConfigを読み込み、
// JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// .envは開発用。存在しなくてもエラーにしない。
	_ = godotenv.Load()

	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("base_url", cfg.BaseURL),
	)

	switch cmd {
	case CommandServe:
		return runServe(cfg)
	case CommandWorker:
		return runWorker(cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	case CommandImport:
		return runImport(cfg, args[1:])
	default:
		return runServe(cfg)
	}
}

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーと
// ステージングスイーパーを起動する。保留バッファはメモリ上にあるため、
// スイーパーはAPIサーバーと同一プロセスで動かす必要がある。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	// 1. DB接続
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established")

	// 2. リポジトリの初期化
	userRepo := repository.NewPostgresUserRepo(db)
	entryRepo := repository.NewPostgresEntryRepo(db)
	stagedRepo := repository.NewPostgresStagedEntryRepo(db)
	channelRepo := repository.NewPostgresChannelRepo(db)
	notifRepo := repository.NewPostgresNotificationRepo(db)

	// 3. メトリクスの初期化
	reg := prometheus.NewRegistry()
	collector := metrics.NewCollector(reg)

	// 4. ステージングバッファの復元
	store := staging.NewStore(entryRepo, stagedRepo, slog.Default())
	if err := store.RestoreFromJournal(context.Background()); err != nil {
		return fmt.Errorf("failed to restore staged entries: %w", err)
	}
	metrics.RegisterPendingGauge(reg, store.Count)

	// 5. セキュリティサービスの初期化
	ssrfGuard := security.NewSSRFGuard()
	sanitizer := security.NewContentSanitizer()

	// 6. 配信系サービスの初期化
	dispatcher := webhook.NewDispatcher(
		ssrfGuard.NewSafeClient(cfg.WebhookTimeout), ssrfGuard, slog.Default(),
	)
	dispatcher.SetLatencyObserver(collector)

	dailyLimiter := notify.NewDailyLimiter(notify.DailyLimiterConfig{
		CapPerDay:       cfg.NotifyDailyCap,
		CleanupInterval: time.Hour,
	})
	defer dailyLimiter.Stop()

	notifier := notify.NewService(notifRepo, dailyLimiter, slog.Default())
	notifier.SetCreationCounter(collector)

	var mailClient mail.Client
	if cfg.MailEnabled() {
		mailClient = mail.NewSMTPClient(mail.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.SMTPFrom,
		})
		slog.Info("メール配信を有効化しました", slog.String("smtp_host", cfg.SMTPHost))
	} else {
		slog.Info("SMTP未設定のためメール配信は無効です")
	}

	resolver := destination.NewResolver(userRepo, slog.Default())
	orchestrator := delivery.NewOrchestrator(
		resolver, dispatcher, mailClient, cfg.SMTPFrom, cfg.BaseURL, notifier, slog.Default(),
	)
	orchestrator.SetEmailBatchObserver(collector)

	publisher := delivery.NewPublisher(userRepo, orchestrator, collector, slog.Default())

	// 7. ドメインサービスの初期化
	entryService := entry.NewService(
		entryRepo, channelRepo, store, sanitizer, publisher, slog.Default(), cfg.StagingDelay,
	)
	channelService := channel.NewService(channelRepo, slog.Default())

	// 8. ルーターの構築
	rateLimiter := middleware.NewRateLimiter(middleware.RateLimiterConfig{
		GeneralRate:     rate.Limit(float64(cfg.RateLimitGeneral) / 60.0),
		GeneralBurst:    cfg.RateLimitGeneral,
		PostRate:        rate.Limit(float64(cfg.RateLimitPost) / 60.0),
		PostBurst:       cfg.RateLimitPost,
		CleanupInterval: 5 * time.Minute,
	})
	defer rateLimiter.Stop()

	router := handler.NewRouter(&handler.RouterDeps{
		UserFinder:         userRepo,
		CORSAllowedOrigin:  cfg.CORSAllowedOrigin,
		RateLimiter:        rateLimiter,
		EntryService:       entryService,
		ChannelService:     channelService,
		NotificationLister: notifRepo,
		HealthCheck: func(w http.ResponseWriter, r *http.Request) {
			if err := db.Ping(); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			w.WriteHeader(http.StatusOK)
		},
	})

	// /metrics はアクセスログとAPIミドルウェアの外に置く
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler(reg))
	mux.Handle("/", middleware.NewLoggingMiddleware(slog.Default())(router))

	// 9. ステージングスイーパーの起動
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sweeper := staging.NewSweeper(store, func(ctx context.Context, e *model.Entry) {
		publisher.Publish(ctx, e)
	}, slog.Default())
	go sweeper.Start(ctx, cfg.SweepInterval)

	// 10. HTTPサーバーの起動
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("API server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server listen error", slog.String("error", err.Error()))
		}
	}()

	<-stop
	slog.Info("shutting down API server...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runWorker はワーカーモードで起動する。
// 保持期間を超過したアプリ内通知の日次クリーンアップを実行する。
// SIGINTまたはSIGTERMシグナルを受信するとシャットダウンする。
func runWorker(cfg *config.Config) error {
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established (worker)")

	job := cleanup.NewCleanupJob(db, slog.Default())
	job.RetentionDays = cfg.NotificationRetentionDays

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-stop
		slog.Info("shutting down worker...")
		cancel()
	}()

	slog.Info("worker starting",
		slog.Int("retention_days", job.RetentionDays),
	)

	// クリーンアップジョブをメインgoroutineで実行（ブロッキング）
	job.Start(ctx, 24*time.Hour)

	slog.Info("worker stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully")
	return nil
}

// runImport は旧データモデルのJSONエクスポートを取り込む。
// 旧モデルの visibility / channel / to の重複は to へ畳み込み、
// to で表現できないエントリはスキップして警告ログを出す。
// 本文は取り込み境界でサニタイズする。
func runImport(cfg *config.Config, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: import <legacy-entries.json>")
	}
	path := args[0]

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read legacy export: %w", err)
	}

	var legacy []model.LegacyEntry
	if err := json.Unmarshal(data, &legacy); err != nil {
		return fmt.Errorf("failed to parse legacy export: %w", err)
	}

	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	entryRepo := repository.NewPostgresEntryRepo(db)
	sanitizer := security.NewContentSanitizer()

	ctx := context.Background()
	imported := 0
	skipped := 0

	for i := range legacy {
		e, ok := legacy[i].Collapse()
		if !ok {
			slog.Warn("toで表現できない本人限定エントリをスキップしました",
				slog.String("entry_id", legacy[i].ID),
			)
			skipped++
			continue
		}

		e.Content = sanitizer.Sanitize(e.Content)
		if strings.TrimSpace(e.Content) == "" {
			slog.Warn("サニタイズ後に本文が空になったエントリをスキップしました",
				slog.String("entry_id", e.ID),
			)
			skipped++
			continue
		}

		if err := entryRepo.Insert(ctx, e); err != nil {
			return fmt.Errorf("failed to import entry %s: %w", e.ID, err)
		}
		imported++
	}

	slog.Info("旧データのインポートが完了しました",
		slog.Int("imported_count", imported),
		slog.Int("skipped_count", skipped),
	)
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /healthz エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/healthz", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}
