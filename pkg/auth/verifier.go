package auth

import (
	"context"
	"errors"
	"slices"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

// Claims は認証基盤が発行するアクセストークンのクレーム。
type Claims struct {
	jwt.RegisteredClaims
	// Permissions は付与された権限の一覧（例: "post:drinks"）。
	// クレーム自体が存在しない場合はnilになり、空配列とは区別される。
	Permissions []string `json:"permissions"`
}

// HasPermission は権限が付与されているかを返す。
func (c *Claims) HasPermission(permission string) bool {
	return slices.Contains(c.Permissions, permission)
}

// Verifier はBearerトークンを検証し、権限をチェックする。
type Verifier struct {
	keys   KeySource
	parser *jwt.Parser
	logger *zap.Logger
}

// VerifierOption はVerifierの設定を変更する関数。
type VerifierOption func(*verifierOptions)

type verifierOptions struct {
	leeway time.Duration
	logger *zap.Logger
}

// WithLeeway は有効期限の判定で許容する時刻のずれを設定する。
func WithLeeway(d time.Duration) VerifierOption {
	return func(o *verifierOptions) {
		o.leeway = d
	}
}

// WithLogger は検証失敗時のログ出力先を設定する。
func WithLogger(logger *zap.Logger) VerifierOption {
	return func(o *verifierOptions) {
		o.logger = logger
	}
}

// NewVerifier は新しいVerifierを生成する。
// トークンはRS256で署名され、issuerとaudienceが一致している必要がある。
func NewVerifier(keys KeySource, issuer, audience string, opts ...VerifierOption) *Verifier {
	o := verifierOptions{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}

	return &Verifier{
		keys: keys,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
			jwt.WithIssuer(issuer),
			jwt.WithAudience(audience),
			jwt.WithExpirationRequired(),
			jwt.WithLeeway(o.leeway),
		),
		logger: o.logger,
	}
}

// TokenFromHeader はAuthorizationヘッダーの値からBearerトークンを取り出す。
// ヘッダーは "Bearer <token>" の2要素である必要がある。
func TokenFromHeader(header string) (string, error) {
	if header == "" {
		return "", unauthenticated(CodeHeaderMissing, "Authorization header is expected.")
	}

	parts := strings.Fields(header)
	switch {
	case len(parts) == 0:
		return "", unauthenticated(CodeHeaderMissing, "Authorization header is expected.")
	case parts[0] != "Bearer":
		return "", unauthenticated(CodeInvalidHeader, `Authorization header must start with "Bearer".`)
	case len(parts) == 1:
		return "", unauthenticated(CodeInvalidHeader, "Token not found.")
	case len(parts) > 2:
		return "", unauthenticated(CodeInvalidHeader, "Authorization header must be bearer token.")
	}
	return parts[1], nil
}

// Decode はトークンの署名・issuer・audience・有効期限を検証してクレームを返す。
// permissionsクレームが存在しない場合もエラーにする。
func (v *Verifier) Decode(ctx context.Context, token string) (*Claims, error) {
	unverified, _, err := jwt.NewParser().ParseUnverified(token, &Claims{})
	if err != nil {
		v.logger.Debug("トークンのデコードに失敗", zap.Error(err))
		return nil, unauthenticated(CodeInvalidHeader, "Authorization malformed.")
	}

	kid, _ := unverified.Header["kid"].(string)
	if kid == "" {
		return nil, unauthenticated(CodeInvalidHeader, "Authorization malformed.")
	}

	key, err := v.keys.Key(ctx, kid)
	if err != nil {
		v.logger.Debug("署名鍵の取得に失敗", zap.String("kid", kid), zap.Error(err))
		return nil, unauthenticated(CodeInvalidHeader, "Unable to find the appropriate key.")
	}

	claims := &Claims{}
	if _, err := v.parser.ParseWithClaims(token, claims, func(_ *jwt.Token) (any, error) {
		return key, nil
	}); err != nil {
		v.logger.Debug("トークンの検証に失敗", zap.String("kid", kid), zap.Error(err))
		return nil, classify(err)
	}

	if claims.Permissions == nil {
		return nil, badRequest(CodeInvalidClaims, "Permissions not included in JWT.")
	}
	return claims, nil
}

// classify はjwtライブラリの検証エラーを *Error に変換する。
func classify(err error) *Error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return unauthenticated(CodeTokenExpired, "Token expired.")
	case errors.Is(err, jwt.ErrTokenInvalidIssuer),
		errors.Is(err, jwt.ErrTokenInvalidAudience),
		errors.Is(err, jwt.ErrTokenRequiredClaimMissing),
		errors.Is(err, jwt.ErrTokenNotValidYet),
		errors.Is(err, jwt.ErrTokenUsedBeforeIssued):
		return unauthenticated(CodeInvalidClaims, "Incorrect claims. Please, check the audience and issuer.")
	default:
		return badRequest(CodeInvalidHeader, "Unable to parse authentication token.")
	}
}

// CheckPermission はクレームに権限が含まれているかを確認する。
func CheckPermission(claims *Claims, permission string) error {
	if claims.Permissions == nil {
		return badRequest(CodeInvalidClaims, "Permissions not included in JWT.")
	}
	if !claims.HasPermission(permission) {
		return forbidden(CodeUnauthorized, "Permission not found.")
	}
	return nil
}

// Verify はAuthorizationヘッダーの値を検証し、permissionが付与されていればクレームを返す。
func (v *Verifier) Verify(ctx context.Context, header, permission string) (*Claims, error) {
	token, err := TokenFromHeader(header)
	if err != nil {
		return nil, err
	}

	claims, err := v.Decode(ctx, token)
	if err != nil {
		return nil, err
	}

	if err := CheckPermission(claims, permission); err != nil {
		return nil, err
	}
	return claims, nil
}
