package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/nao1215/coffeeshop/pkg/httpclient"
)

// DefaultJWKSPath はAuth0互換の認証基盤が公開鍵セットを配布するパス。
const DefaultJWKSPath = "/.well-known/jwks.json"

// DefaultKeyCacheTTL は取得したJWKSを再取得せずに使い続ける期間。
const DefaultKeyCacheTTL = time.Hour

// サーキットブレーカーとJWKS取得の既定値。
const (
	DefaultBreakerFailures = 3
	DefaultBreakerTimeout  = 30 * time.Second
	DefaultFetchTimeout    = 5 * time.Second
)

// minRefreshInterval は未知のkidを理由に再取得する際の最短間隔。
const minRefreshInterval = 30 * time.Second

// KeySource はkidに対応する検証用公開鍵を返す。
type KeySource interface {
	// Key はkidに一致する公開鍵（*rsa.PublicKey等）を返す。
	// 一致する鍵が無い場合はErrKeyNotFoundをラップしたエラーを返す。
	Key(ctx context.Context, kid string) (any, error)
}

// lookupKey はJWKSからkidに一致する鍵を探し、生の公開鍵に変換する。
func lookupKey(set jwk.Set, kid string) (any, error) {
	key, ok := set.LookupKeyID(kid)
	if !ok {
		return nil, fmt.Errorf("%w: kid=%s", ErrKeyNotFound, kid)
	}

	var raw any
	if err := key.Raw(&raw); err != nil {
		return nil, fmt.Errorf("公開鍵の変換に失敗: kid=%s: %w", kid, err)
	}
	return raw, nil
}

// StaticKeySet は設定で与えられたJWKSを保持する鍵セット。
type StaticKeySet struct {
	set jwk.Set
}

// NewStaticKeySet はJWKS形式のJSONから鍵セットを生成する。
func NewStaticKeySet(data []byte) (*StaticKeySet, error) {
	set, err := jwk.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("JWKSのパースに失敗: %w", err)
	}
	return &StaticKeySet{set: set}, nil
}

// Key はkidに一致する公開鍵を返す。
func (s *StaticKeySet) Key(_ context.Context, kid string) (any, error) {
	return lookupKey(s.set, kid)
}

// RemoteKeySet は認証基盤のJWKSエンドポイントから鍵セットを取得し、TTLの間キャッシュする。
// 再取得に失敗した場合は古い鍵セットを使い続ける。
// 取得処理はサーキットブレーカーで保護され、認証基盤の障害時には即座に失敗する。
// 同時に発生した取得要求は1回の取得にまとめられ、呼び出し元のキャンセルの影響を受けない。
type RemoteKeySet struct {
	client       *httpclient.Client
	path         string
	ttl          time.Duration
	fetchTimeout time.Duration
	breaker      *gobreaker.CircuitBreaker
	group        singleflight.Group
	logger       *zap.Logger

	mu        sync.RWMutex
	set       jwk.Set
	fetchedAt time.Time
}

// RemoteKeySetOption はRemoteKeySetの設定を変更する関数。
type RemoteKeySetOption func(*remoteKeySetOptions)

type remoteKeySetOptions struct {
	breakerFailures uint32
	breakerTimeout  time.Duration
	fetchTimeout    time.Duration
}

// WithBreaker はサーキットブレーカーが開くまでの連続失敗回数と、開いている期間を設定する。
// 0以下の値は既定値のままにする。
func WithBreaker(failures uint32, timeout time.Duration) RemoteKeySetOption {
	return func(o *remoteKeySetOptions) {
		if failures > 0 {
			o.breakerFailures = failures
		}
		if timeout > 0 {
			o.breakerTimeout = timeout
		}
	}
}

// WithFetchTimeout は1回のJWKS取得に許容する時間を設定する。
func WithFetchTimeout(d time.Duration) RemoteKeySetOption {
	return func(o *remoteKeySetOptions) {
		if d > 0 {
			o.fetchTimeout = d
		}
	}
}

// NewRemoteKeySet は新しいRemoteKeySetを生成する。
// pathが空の場合はDefaultJWKSPath、ttlが0以下の場合はDefaultKeyCacheTTLを使用する。
func NewRemoteKeySet(client *httpclient.Client, path string, ttl time.Duration, logger *zap.Logger, opts ...RemoteKeySetOption) *RemoteKeySet {
	if path == "" {
		path = DefaultJWKSPath
	}
	if ttl <= 0 {
		ttl = DefaultKeyCacheTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	o := remoteKeySetOptions{
		breakerFailures: DefaultBreakerFailures,
		breakerTimeout:  DefaultBreakerTimeout,
		fetchTimeout:    DefaultFetchTimeout,
	}
	for _, opt := range opts {
		opt(&o)
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "jwks",
		MaxRequests: 1,
		Timeout:     o.breakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= o.breakerFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("サーキットブレーカーの状態が変化しました",
				zap.String("name", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})

	return &RemoteKeySet{
		client:       client,
		path:         path,
		ttl:          ttl,
		fetchTimeout: o.fetchTimeout,
		breaker:      breaker,
		logger:       logger,
	}
}

// Key はkidに一致する公開鍵を返す。
// キャッシュに一致する鍵が無い場合、鍵のローテーションを考慮して一度だけ再取得する。
func (r *RemoteKeySet) Key(ctx context.Context, kid string) (any, error) {
	set, err := r.keySet(ctx)
	if err != nil {
		return nil, err
	}

	key, err := lookupKey(set, kid)
	if err == nil || !errors.Is(err, ErrKeyNotFound) || !r.canRefreshEarly() {
		return key, err
	}

	if refreshErr := r.Refresh(ctx); refreshErr != nil {
		r.logger.Warn("未知のkidによるJWKS再取得に失敗", zap.String("kid", kid), zap.Error(refreshErr))
		return nil, err
	}

	r.mu.RLock()
	set = r.set
	r.mu.RUnlock()
	return lookupKey(set, kid)
}

// Refresh はJWKSエンドポイントから鍵セットを取得してキャッシュを更新する。
func (r *RemoteKeySet) Refresh(ctx context.Context) error {
	return r.refresh(ctx, r.lastFetched())
}

// refresh は取得処理を1つにまとめて実行する。
// observed より後に別の呼び出しが取得を終えていれば、再取得せずにその結果を使う。
// 取得はctxのキャンセルから切り離して実行し、ctxが終了した場合は呼び出し元だけが先に戻る。
func (r *RemoteKeySet) refresh(ctx context.Context, observed time.Time) error {
	fetchCtx := context.WithoutCancel(ctx)
	ch := r.group.DoChan("jwks", func() (any, error) {
		if r.lastFetched().After(observed) {
			return nil, nil
		}
		return nil, r.fetch(fetchCtx)
	})

	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return fmt.Errorf("JWKSの取得待ちを中断: %w", ctx.Err())
	}
}

// fetch はサーキットブレーカー経由でJWKSを取得してキャッシュを更新する。
func (r *RemoteKeySet) fetch(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, r.fetchTimeout)
	defer cancel()

	result, err := r.breaker.Execute(func() (interface{}, error) {
		var body json.RawMessage
		if err := r.client.GetJSON(ctx, r.path, &body); err != nil {
			return nil, err
		}
		return jwk.Parse(body)
	})
	if err != nil {
		return fmt.Errorf("JWKSの取得に失敗: %w", err)
	}

	set, ok := result.(jwk.Set)
	if !ok {
		return fmt.Errorf("JWKSの取得結果が不正: %T", result)
	}

	r.mu.Lock()
	r.set = set
	r.fetchedAt = time.Now()
	r.mu.Unlock()

	r.logger.Info("JWKSを更新しました",
		zap.String("url", r.client.BaseURL()+r.path),
		zap.Int("key_count", set.Len()),
	)
	return nil
}

// keySet はキャッシュ済みの鍵セットを返す。TTLを過ぎている場合は再取得する。
func (r *RemoteKeySet) keySet(ctx context.Context) (jwk.Set, error) {
	r.mu.RLock()
	set, fetchedAt := r.set, r.fetchedAt
	r.mu.RUnlock()

	if set != nil && time.Since(fetchedAt) < r.ttl {
		return set, nil
	}

	if err := r.refresh(ctx, fetchedAt); err != nil {
		if set == nil {
			return nil, err
		}
		r.logger.Warn("JWKSの再取得に失敗したためキャッシュ済みの鍵を使用します",
			zap.Error(err),
			zap.Time("fetched_at", fetchedAt),
		)
		return set, nil
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.set, nil
}

// lastFetched は最後に取得に成功した時刻を返す。
func (r *RemoteKeySet) lastFetched() time.Time {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.fetchedAt
}

// canRefreshEarly は最後の取得からminRefreshInterval以上経過しているかを返す。
func (r *RemoteKeySet) canRefreshEarly() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return time.Since(r.fetchedAt) >= minRefreshInterval
}
