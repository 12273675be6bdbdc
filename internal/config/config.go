// Package config はサービスの設定を読み込む。
//
// CONFIG_FILE で指定したYAMLファイルを読み込んだ後、環境変数で上書きする。
// どちらにも無い項目はデフォルト値を使用する。
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config はサービス全体の設定。
type Config struct {
	// Port はHTTPサーバーのリッスンポート。
	Port string `yaml:"port"`
	// DatabasePath はSQLiteデータベースファイルのパス。
	DatabasePath string `yaml:"database_path"`
	// ResetDB がtrueの場合、起動時に全ドリンクを削除して初期データを投入する。
	ResetDB bool `yaml:"reset_db"`
	// Auth は認証基盤の設定。
	Auth AuthConfig `yaml:"auth"`
	// AllowedOrigins はCORSで許可するオリジン。
	AllowedOrigins []string `yaml:"allowed_origins"`
	// Log はログ出力の設定。
	Log LogConfig `yaml:"log"`
	// RateLimit はレート制限の設定。
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

// AuthConfig は認証基盤（Auth0等）の設定。
type AuthConfig struct {
	// Domain は認証基盤のドメイン（例: "example.us.auth0.com"）。
	Domain string `yaml:"domain"`
	// Audience はトークンのaudクレームに期待する値。
	Audience string `yaml:"audience"`
	// Issuer はトークンのissクレームに期待する値。未指定時は "https://<Domain>/"。
	Issuer string `yaml:"issuer"`
	// JWKSURL はJWKSエンドポイントのURL。未指定時は "https://<Domain>/.well-known/jwks.json"。
	JWKSURL string `yaml:"jwks_url"`
	// JWKSJSON が設定されている場合、リモート取得せずにこのJWKSを使用する。
	JWKSJSON string `yaml:"jwks_json"`
	// JWKSCacheTTL は取得したJWKSのキャッシュ期間。
	JWKSCacheTTL time.Duration `yaml:"jwks_cache_ttl"`
	// BreakerFailures はJWKS取得のサーキットブレーカーが開くまでの連続失敗回数。
	BreakerFailures uint32 `yaml:"breaker_failures"`
	// BreakerTimeout はサーキットブレーカーが開いたままでいる期間。
	BreakerTimeout time.Duration `yaml:"breaker_timeout"`
	// Leeway はトークンの有効期限の判定で許容する時刻のずれ。
	Leeway time.Duration `yaml:"leeway"`
}

// LogConfig はログ出力の設定。
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// RateLimitConfig はレート制限の設定。RPSが0の場合は無効。
type RateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

// Default はデフォルト値を設定したConfigを返す。
func Default() *Config {
	return &Config{
		Port:           "8080",
		DatabasePath:   "/data/coffeeshop.db",
		AllowedOrigins: []string{"http://localhost:8100"},
		Auth: AuthConfig{
			JWKSCacheTTL:    time.Hour,
			BreakerFailures: 3,
			BreakerTimeout:  30 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		RateLimit: RateLimitConfig{
			Burst: 20,
		},
	}
}

// Load は設定ファイルと環境変数から設定を読み込み、検証する。
func Load() (*Config, error) {
	cfg := Default()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	cfg.fillDerived()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadFile はYAMLファイルの内容をcfgに上書きする。
func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // 設定ファイルのパスは運用者が指定する
	if err != nil {
		return fmt.Errorf("設定ファイルの読み込みに失敗: %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("設定ファイルのパースに失敗: %s: %w", path, err)
	}
	return nil
}

// applyEnv は環境変数の値をcfgに上書きする。
func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}

	str("PORT", &c.Port)
	str("DATABASE_PATH", &c.DatabasePath)
	str("AUTH0_DOMAIN", &c.Auth.Domain)
	str("API_AUDIENCE", &c.Auth.Audience)
	str("AUTH_ISSUER", &c.Auth.Issuer)
	str("JWKS_URL", &c.Auth.JWKSURL)
	str("JWKS_JSON", &c.Auth.JWKSJSON)
	str("LOG_LEVEL", &c.Log.Level)
	str("LOG_FORMAT", &c.Log.Format)

	if v, ok := lookup("ALLOWED_ORIGINS"); ok && v != "" {
		c.AllowedOrigins = splitList(v)
	}

	if v, ok := lookup("DB_RESET"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("DB_RESETが不正です: %q: %w", v, err)
		}
		c.ResetDB = b
	}
	if v, ok := lookup("JWKS_CACHE_TTL"); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("JWKS_CACHE_TTLが不正です: %q: %w", v, err)
		}
		c.Auth.JWKSCacheTTL = d
	}
	if v, ok := lookup("JWKS_BREAKER_FAILURES"); ok && v != "" {
		n, err := strconv.ParseUint(v, 10, 32)
		if err != nil {
			return fmt.Errorf("JWKS_BREAKER_FAILURESが不正です: %q: %w", v, err)
		}
		c.Auth.BreakerFailures = uint32(n)
	}
	if v, ok := lookup("JWKS_BREAKER_TIMEOUT"); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("JWKS_BREAKER_TIMEOUTが不正です: %q: %w", v, err)
		}
		c.Auth.BreakerTimeout = d
	}
	if v, ok := lookup("JWT_LEEWAY"); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("JWT_LEEWAYが不正です: %q: %w", v, err)
		}
		c.Auth.Leeway = d
	}
	if v, ok := lookup("RATE_LIMIT_RPS"); ok && v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("RATE_LIMIT_RPSが不正です: %q: %w", v, err)
		}
		c.RateLimit.RPS = f
	}
	if v, ok := lookup("RATE_LIMIT_BURST"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("RATE_LIMIT_BURSTが不正です: %q: %w", v, err)
		}
		c.RateLimit.Burst = n
	}
	return nil
}

// fillDerived はドメインから導出できる未設定項目を埋める。
func (c *Config) fillDerived() {
	if c.Auth.Domain == "" {
		return
	}
	if c.Auth.Issuer == "" {
		c.Auth.Issuer = "https://" + c.Auth.Domain + "/"
	}
	if c.Auth.JWKSURL == "" {
		c.Auth.JWKSURL = "https://" + c.Auth.Domain + "/.well-known/jwks.json"
	}
}

// Validate は必須項目が揃っているかを確認する。
func (c *Config) Validate() error {
	var errs []error
	if c.Port == "" {
		errs = append(errs, errors.New("PORTが未設定です"))
	}
	if c.DatabasePath == "" {
		errs = append(errs, errors.New("DATABASE_PATHが未設定です"))
	}
	if c.Auth.Audience == "" {
		errs = append(errs, errors.New("API_AUDIENCEが未設定です"))
	}
	if c.Auth.Issuer == "" {
		errs = append(errs, errors.New("AUTH0_DOMAINまたはAUTH_ISSUERが未設定です"))
	}
	if c.Auth.JWKSJSON == "" && c.Auth.JWKSURL == "" {
		errs = append(errs, errors.New("AUTH0_DOMAIN、JWKS_URL、JWKS_JSONのいずれかが必要です"))
	}
	if c.Auth.BreakerFailures == 0 {
		errs = append(errs, errors.New("JWKS_BREAKER_FAILURESは1以上である必要があります"))
	}
	if c.Auth.BreakerTimeout <= 0 {
		errs = append(errs, errors.New("JWKS_BREAKER_TIMEOUTは正の値である必要があります"))
	}
	if c.Auth.Leeway < 0 {
		errs = append(errs, errors.New("JWT_LEEWAYは0以上である必要があります"))
	}
	return errors.Join(errs...)
}

// splitList はカンマ区切りの文字列を空要素を除いて分割する。
func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
