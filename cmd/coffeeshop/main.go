// コーヒーショップのドリンクサービスのエントリポイント。
// ドリンクの一覧・作成・更新・削除を提供し、変更系の操作はAuth0が発行したトークンの権限で保護する。
package main

import (
	"context"
	"fmt"
	"log"
	"net/url"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/nao1215/coffeeshop/internal/config"
	"github.com/nao1215/coffeeshop/internal/drink"
	"github.com/nao1215/coffeeshop/pkg/auth"
	"github.com/nao1215/coffeeshop/pkg/httpclient"
	"github.com/nao1215/coffeeshop/pkg/logging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("設定の読み込みに失敗: %v", err)
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		log.Fatalf("ロガーの初期化に失敗: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("ドリンクサービスの起動に失敗", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx := context.Background()

	db, err := drink.OpenDB(ctx, cfg.DatabasePath, logger)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	store := drink.NewStore(db)
	if cfg.ResetDB {
		if err := store.Reset(ctx); err != nil {
			return fmt.Errorf("データベースの初期化に失敗: %w", err)
		}
		logger.Info("ドリンクを初期データで置き換えました")
	}

	keys, err := newKeySource(cfg.Auth, logger)
	if err != nil {
		return err
	}
	verifier := auth.NewVerifier(keys, cfg.Auth.Issuer, cfg.Auth.Audience,
		auth.WithLeeway(cfg.Auth.Leeway),
		auth.WithLogger(logger),
	)

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	server, err := drink.NewServer(drink.Options{
		Port:           cfg.Port,
		Repository:     store,
		Authorizer:     verifier,
		Logger:         logger,
		AllowedOrigins: cfg.AllowedOrigins,
		Registry:       registry,
		RateLimitRPS:   cfg.RateLimit.RPS,
		RateLimitBurst: cfg.RateLimit.Burst,
	})
	if err != nil {
		return fmt.Errorf("サーバーの初期化に失敗: %w", err)
	}

	logger.Info("ドリンクサービスを起動します",
		zap.String("port", cfg.Port),
		zap.String("issuer", cfg.Auth.Issuer),
		zap.String("audience", cfg.Auth.Audience),
	)
	return server.Run()
}

// newKeySource は設定に応じて署名検証用の鍵の取得元を生成する。
// JWKSJSONが設定されていればそれを使い、そうでなければJWKSURLから取得する。
func newKeySource(cfg config.AuthConfig, logger *zap.Logger) (auth.KeySource, error) {
	if cfg.JWKSJSON != "" {
		keys, err := auth.NewStaticKeySet([]byte(cfg.JWKSJSON))
		if err != nil {
			return nil, fmt.Errorf("JWKS_JSONの読み込みに失敗: %w", err)
		}
		logger.Info("設定されたJWKSで署名を検証します")
		return keys, nil
	}

	u, err := url.Parse(cfg.JWKSURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("JWKS_URLが不正です: %q", cfg.JWKSURL)
	}
	path := u.EscapedPath()
	if path == "" {
		path = auth.DefaultJWKSPath
	}
	if u.RawQuery != "" {
		path += "?" + u.RawQuery
	}
	base := u.Scheme + "://" + u.Host

	logger.Info("JWKSをリモートから取得します", zap.String("url", cfg.JWKSURL))
	return auth.NewRemoteKeySet(httpclient.New(base, 0), path, cfg.JWKSCacheTTL, logger,
		auth.WithBreaker(cfg.BreakerFailures, cfg.BreakerTimeout),
	), nil
}
