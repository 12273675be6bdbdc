package drink

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/nao1215/coffeeshop/pkg/middleware"
	"github.com/nao1215/coffeeshop/pkg/response"
)

// Server はドリンクサービスのHTTPサーバー。
type Server struct {
	// router はGinのHTTPルーター。
	router *gin.Engine
	// port はサーバーのリッスンポート。
	port string
	// repo はドリンクの永続化層。
	repo Repository
	// authorizer はトークンと権限を検証する。
	authorizer middleware.Authorizer
	// logger は構造化ロガー。
	logger *zap.Logger
}

// Options はServerの生成に必要な依存関係と設定。
type Options struct {
	// Port はリッスンポート。
	Port string
	// Repository はドリンクの永続化層。
	Repository Repository
	// Authorizer はトークンと権限を検証する。
	Authorizer middleware.Authorizer
	// Logger は構造化ロガー。nilの場合はログを出力しない。
	Logger *zap.Logger
	// AllowedOrigins はCORSで許可するオリジン。
	AllowedOrigins []string
	// Registry はメトリクスの登録先。nilの場合は新しいレジストリを使用する。
	Registry *prometheus.Registry
	// RateLimitRPS は1秒あたりの許容リクエスト数。0の場合は制限しない。
	RateLimitRPS float64
	// RateLimitBurst はレート制限のバースト数。
	RateLimitBurst int
}

// NewServer は新しいドリンクサーバーを生成する。
func NewServer(opts Options) (*Server, error) {
	if opts.Repository == nil {
		return nil, errors.New("Repositoryが未設定です")
	}
	if opts.Authorizer == nil {
		return nil, errors.New("Authorizerが未設定です")
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	registry := opts.Registry
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	metrics, err := middleware.NewMetrics("coffeeshop", registry)
	if err != nil {
		return nil, fmt.Errorf("メトリクスの登録に失敗: %w", err)
	}

	router := gin.New()
	router.HandleMethodNotAllowed = true
	router.NoRoute(response.NoRoute())
	router.NoMethod(response.NoMethod())
	router.Use(middleware.Recovery(logger))
	router.Use(middleware.RequestID())
	router.Use(middleware.AccessLog(logger, "/health", "/metrics"))
	router.Use(metrics.Handler())
	router.Use(middleware.CORS(opts.AllowedOrigins))
	router.Use(middleware.RateLimit(opts.RateLimitRPS, opts.RateLimitBurst))

	s := &Server{
		router:     router,
		port:       opts.Port,
		repo:       opts.Repository,
		authorizer: opts.Authorizer,
		logger:     logger,
	}
	s.setupRoutes(registry)

	return s, nil
}

// Run はHTTPサーバーを起動する。
func (s *Server) Run() error {
	return s.router.Run(fmt.Sprintf(":%s", s.port))
}

// Handler はルーティング済みのhttp.Handlerを返す。
func (s *Server) Handler() http.Handler {
	return s.router
}

// setupRoutes はAPIルーティングを設定する。
func (s *Server) setupRoutes(gatherer prometheus.Gatherer) {
	requires := func(permission string) gin.HandlerFunc {
		return middleware.RequiresAuth(s.authorizer, permission)
	}

	// ドリンク一覧取得（認証不要）
	s.router.GET("/drinks", s.handleList())
	// ドリンク詳細一覧取得。/drinks-details は旧クライアント向けの別名。
	s.router.GET("/drinks-detail", requires(PermissionGetDetail), s.handleListDetail())
	s.router.GET("/drinks-details", requires(PermissionGetDetail), s.handleListDetail())
	// ドリンク作成
	s.router.POST("/drinks", requires(PermissionPost), s.handleCreate())
	// ドリンク更新
	s.router.PATCH("/drinks/:id", requires(PermissionPatch), s.handleUpdate())
	// ドリンク削除
	s.router.DELETE("/drinks/:id", requires(PermissionDelete), s.handleDelete())

	// ヘルスチェック
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "coffeeshop"})
	})
	// Prometheusメトリクス
	s.router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
}

// handleList はドリンク一覧を公開向けの表現で返すハンドラを返す。
func (s *Server) handleList() gin.HandlerFunc {
	return func(c *gin.Context) {
		drinks, err := s.repo.All(c.Request.Context())
		if err != nil {
			s.abortWithError(c, err, http.StatusNotFound)
			return
		}

		shorts := make([]ShortDrink, 0, len(drinks))
		for i := range drinks {
			shorts = append(shorts, drinks[i].Short())
		}
		response.OK(c, gin.H{"drinks": shorts})
	}
}

// handleListDetail はドリンク一覧を詳細な表現で返すハンドラを返す。
func (s *Server) handleListDetail() gin.HandlerFunc {
	return func(c *gin.Context) {
		drinks, err := s.repo.All(c.Request.Context())
		if err != nil {
			s.abortWithError(c, err, http.StatusNotFound)
			return
		}

		longs := make([]LongDrink, 0, len(drinks))
		for i := range drinks {
			longs = append(longs, drinks[i].Long())
		}
		response.OK(c, gin.H{"drinks": longs})
	}
}

// handleCreate はドリンク作成を処理するハンドラを返す。
// titleとrecipeのどちらかが無い場合は400を返す。
func (s *Server) handleCreate() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req drinkRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			s.abortInvalidBody(c, err)
			return
		}
		if err := req.checkPresence(); err != nil {
			s.abortWithError(c, err, http.StatusBadRequest)
			return
		}

		d, err := req.toDrink()
		if err != nil {
			s.abortWithError(c, err, http.StatusBadRequest)
			return
		}

		if err := s.repo.Insert(c.Request.Context(), d); err != nil {
			s.abortWithError(c, err, http.StatusNotFound)
			return
		}
		s.logMutation(c, "ドリンクを作成しました", d)

		response.OK(c, gin.H{"drinks": []LongDrink{d.Long()}})
	}
}

// handleUpdate はドリンク更新を処理するハンドラを返す。
// titleとrecipeを丸ごと置き換える。項目が欠けている場合やIDが存在しない場合は404を返す。
func (s *Server) handleUpdate() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseID(c)
		if !ok {
			response.Abort(c, http.StatusNotFound)
			return
		}

		var req drinkRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			s.abortInvalidBody(c, err)
			return
		}
		if err := req.checkPresence(); err != nil {
			s.abortWithError(c, err, http.StatusNotFound)
			return
		}

		d, err := req.toDrink()
		if err != nil {
			s.abortWithError(c, err, http.StatusNotFound)
			return
		}

		if _, err := s.repo.ByID(c.Request.Context(), id); err != nil {
			s.abortWithError(c, err, http.StatusNotFound)
			return
		}

		d.ID = id
		if err := s.repo.Update(c.Request.Context(), d); err != nil {
			s.abortWithError(c, err, http.StatusNotFound)
			return
		}
		s.logMutation(c, "ドリンクを更新しました", d)

		response.OK(c, gin.H{"drinks": []LongDrink{d.Long()}})
	}
}

// handleDelete はドリンク削除を処理するハンドラを返す。
func (s *Server) handleDelete() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseID(c)
		if !ok {
			response.Abort(c, http.StatusNotFound)
			return
		}

		d, err := s.repo.ByID(c.Request.Context(), id)
		if err != nil {
			s.abortWithError(c, err, http.StatusNotFound)
			return
		}

		if err := s.repo.Delete(c.Request.Context(), id); err != nil {
			s.abortWithError(c, err, http.StatusNotFound)
			return
		}
		s.logMutation(c, "ドリンクを削除しました", d)

		response.OK(c, gin.H{"delete": id})
	}
}

// logMutation は変更操作の結果を、操作したトークンのsubとともに記録する。
func (s *Server) logMutation(c *gin.Context, msg string, d *Drink) {
	var subject string
	if claims := middleware.GetClaims(c); claims != nil {
		subject = claims.Subject
	}
	s.logger.Info(msg,
		zap.Int64("id", d.ID),
		zap.String("title", d.Title),
		zap.String("subject", subject),
		zap.String("request_id", middleware.GetRequestID(c)),
	)
}

// parseID はパスパラメータのIDを解釈する。
func parseID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id < 1 {
		return 0, false
	}
	return id, true
}

// abortInvalidBody はJSONとして解釈できないリクエストボディに400を返す。
func (s *Server) abortInvalidBody(c *gin.Context, err error) {
	_ = c.Error(err)
	response.Abort(c, http.StatusBadRequest)
}

// abortWithError はエラーの種類に応じたステータスでエラーレスポンスを返す。
// missingStatus は必須項目が無い場合およびドリンクが存在しない場合のステータス。
//
//   - 必須項目の欠落: missingStatus
//   - ドリンクが存在しない: 404
//   - レシピやドリンク名が不正、ドリンク名の重複: 422
//   - それ以外（ストレージ障害等）: 500
func (s *Server) abortWithError(c *gin.Context, err error, missingStatus int) {
	_ = c.Error(err)

	switch {
	case errors.Is(err, ErrMissingField):
		response.Abort(c, missingStatus)
	case errors.Is(err, ErrNotFound):
		response.Abort(c, http.StatusNotFound)
	case errors.Is(err, ErrInvalidRecipe), errors.Is(err, ErrInvalidTitle), errors.Is(err, ErrDuplicateTitle):
		response.Abort(c, http.StatusUnprocessableEntity)
	default:
		s.logger.Error("ストレージ操作に失敗",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.String("request_id", middleware.GetRequestID(c)),
			zap.Error(err),
		)
		response.Abort(c, http.StatusInternalServerError)
	}
}
