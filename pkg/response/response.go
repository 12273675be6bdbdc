// Package response はすべてのHTTPレスポンスを共通のJSONエンベロープで返すためのヘルパーを提供する。
//
// 成功時は {"success": true, ...}、失敗時は {"success": false, "error": <code>, "message": <string>}
// の形式に統一する。
package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// messages はステータスごとの固定エラーメッセージ。
// 401は認証エラーの説明文をそのまま返すため、ここには含めない。
var messages = map[int]string{
	http.StatusBadRequest:          "Bad Request",
	http.StatusForbidden:           "Forbidden",
	http.StatusNotFound:            "Resource Not Found",
	http.StatusMethodNotAllowed:    "Method Not Allowed",
	http.StatusUnprocessableEntity: "Not Processable",
	http.StatusTooManyRequests:     "Too Many Requests",
	http.StatusInternalServerError: "Internal Server Error",
}

// Message はステータスコードに対応する固定メッセージを返す。
func Message(status int) string {
	if m, ok := messages[status]; ok {
		return m
	}
	return http.StatusText(status)
}

// OK は成功エンベロープを200で返す。fieldsは "success" と並べて出力される。
func OK(c *gin.Context, fields gin.H) {
	body := gin.H{"success": true}
	for k, v := range fields {
		body[k] = v
	}
	c.JSON(http.StatusOK, body)
}

// Abort は固定メッセージ付きのエラーエンベロープを返し、後続のハンドラを中断する。
func Abort(c *gin.Context, status int) {
	AbortWithMessage(c, status, Message(status))
}

// AbortWithMessage は任意のメッセージ付きのエラーエンベロープを返し、後続のハンドラを中断する。
func AbortWithMessage(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, gin.H{
		"success": false,
		"error":   status,
		"message": message,
	})
}

// NoRoute は未登録パスへのリクエストに404を返すハンドラ。
func NoRoute() gin.HandlerFunc {
	return func(c *gin.Context) {
		Abort(c, http.StatusNotFound)
	}
}

// NoMethod は登録済みパスへの許可されていないメソッドに405を返すハンドラ。
// gin.Engine.HandleMethodNotAllowed を有効にしておく必要がある。
func NoMethod() gin.HandlerFunc {
	return func(c *gin.Context) {
		Abort(c, http.StatusMethodNotAllowed)
	}
}
