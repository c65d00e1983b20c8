package api

import (
	"net/http"

	"github.com/shouni/go-storyboard-kit/pkg/domain"
)

// API エラーコード
const (
	ErrorBadRequest       = "BAD_REQUEST"
	ErrorValidation       = "VALIDATION_ERROR"
	ErrorParse            = "PARSE_ERROR"
	ErrorSchema           = "SCHEMA_ERROR"
	ErrorGenerationFailed = "GENERATION_FAILED"
	ErrorTimeout          = "TIMEOUT"
	ErrorNotFound         = "NOT_FOUND"
	ErrorInternalError    = "INTERNAL_ERROR"
	ErrorExportFailed     = "EXPORT_FAILED"
	ErrorConfigReload     = "CONFIG_RELOAD_FAILED"
)

// statusFor はエラー分類から HTTP ステータスとエラーコードを決めます。
func statusFor(kind domain.Kind) (int, string) {
	switch kind {
	case domain.KindValidation:
		return http.StatusBadRequest, ErrorValidation
	case domain.KindTimeout:
		return http.StatusGatewayTimeout, ErrorTimeout
	case domain.KindNotFound:
		return http.StatusNotFound, ErrorNotFound
	case domain.KindParse:
		return http.StatusInternalServerError, ErrorParse
	case domain.KindSchema:
		return http.StatusInternalServerError, ErrorSchema
	case domain.KindGeneration:
		return http.StatusInternalServerError, ErrorGenerationFailed
	default:
		return http.StatusInternalServerError, ErrorInternalError
	}
}
