package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/shouni/go-storyboard-kit/pkg/domain"
)

// ResponseHelper は成功・失敗の共通エンベロープを書き出します。
// 成功: {"success": true, "<field>": ...}
// 失敗: {"success": false, "error": "...", "code": "...", "details": "..."}
type ResponseHelper struct{}

// NewResponseHelper は ResponseHelper を生成します。
func NewResponseHelper() *ResponseHelper {
	return &ResponseHelper{}
}

// Success は成果物を field に入れて 200 で返します。extra があれば同じ階層に追加します。
func (rh *ResponseHelper) Success(c *gin.Context, field string, value any, extra ...gin.H) {
	body := gin.H{"success": true, field: value}
	for _, e := range extra {
		for k, v := range e {
			body[k] = v
		}
	}
	c.JSON(http.StatusOK, body)
}

// Error は任意のステータスとコードで失敗エンベロープを返します。
func (rh *ResponseHelper) Error(c *gin.Context, status int, code, message string, details ...string) {
	body := gin.H{"success": false, "error": message, "code": code}
	if len(details) > 0 && details[0] != "" {
		body["details"] = details[0]
	}
	c.AbortWithStatusJSON(status, body)
}

// BadRequest はリクエストの形式不備を 400 で返します。
func (rh *ResponseHelper) BadRequest(c *gin.Context, message string, details ...string) {
	rh.Error(c, http.StatusBadRequest, ErrorBadRequest, message, details...)
}

// Fail は Runner のエラーを分類に応じたステータスで返します。
// 分類の無い内部エラーは詳細を隠してログにだけ残します。
func (rh *ResponseHelper) Fail(c *gin.Context, err error, details ...string) {
	kind := domain.KindOf(err)
	status, code := statusFor(kind)

	message := err.Error()
	var de *domain.Error
	if !errors.As(err, &de) {
		message = "internal error"
	}
	slog.ErrorContext(c.Request.Context(), "Request failed",
		"path", c.FullPath(),
		"status", status,
		"code", code,
		"error", err)
	rh.Error(c, status, code, message, details...)
}
