package auth

import (
	"errors"
	"fmt"
	"net/http"
)

// Error は認証・認可の失敗を表す。
// Status はクライアントに返すHTTPステータス、Description はレスポンスのメッセージに使われる。
type Error struct {
	// Status はHTTPステータスコード（400, 401, 403のいずれか）。
	Status int
	// Code は失敗の種類を表す機械可読なコード。
	Code string
	// Description は人間向けの説明文。
	Description string
}

// Error はerrorインターフェースを実装する。
func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

// エラーコード。
const (
	CodeHeaderMissing = "authorization_header_missing"
	CodeInvalidHeader = "invalid_header"
	CodeTokenExpired  = "token_expired"
	CodeInvalidClaims = "invalid_claims"
	CodeUnauthorized  = "unauthorized"
)

// ErrKeyNotFound はトークンのkidに一致する署名鍵が鍵セットに存在しないことを表す。
var ErrKeyNotFound = errors.New("署名鍵が見つかりません")

func unauthenticated(code, description string) *Error {
	return &Error{Status: http.StatusUnauthorized, Code: code, Description: description}
}

func badRequest(code, description string) *Error {
	return &Error{Status: http.StatusBadRequest, Code: code, Description: description}
}

func forbidden(code, description string) *Error {
	return &Error{Status: http.StatusForbidden, Code: code, Description: description}
}

// AsError はerrから *Error を取り出す。
func AsError(err error) (*Error, bool) {
	var authErr *Error
	if errors.As(err, &authErr) {
		return authErr, true
	}
	return nil, false
}
