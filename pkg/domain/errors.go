package domain

import (
	"errors"
	"fmt"
)

// Kind はエラーの分類です。HTTP 層はこの分類でステータスコードを決定します。
type Kind string

const (
	KindValidation Kind = "validation"
	KindParse      Kind = "parse"
	KindSchema     Kind = "schema"
	KindGeneration Kind = "generation"
	KindTimeout    Kind = "timeout"
	KindNotFound   Kind = "not_found"
	KindInternal   Kind = "internal"
)

var (
	// ErrNoJSON は応答テキストに JSON オブジェクトが見つからなかったことを示します。
	ErrNoJSON = &Error{Kind: KindParse, Message: "response not parseable: no JSON object found"}
	// ErrNoImages は画像生成が成功扱いで0枚を返したことを示します。
	ErrNoImages = &Error{Kind: KindGeneration, Message: "image generation returned no images"}
	// ErrTimeout は生成呼び出しが制限時間を超えたことを示します。
	ErrTimeout = &Error{Kind: KindTimeout, Message: "generation timed out"}
)

// Error はパイプライン全体で共通のエラー型です。
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is は Kind と Message が一致する *Error を同一とみなします。センチネル比較用です。
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind && e.Message == t.Message
}

func newError(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// NewValidationError は外部呼び出し前に検出した入力エラーを生成します。
func NewValidationError(format string, args ...any) *Error {
	return newError(KindValidation, nil, format, args...)
}

// NewSchemaError は応答 JSON がスキーマを満たさない場合のエラーを生成します。
func NewSchemaError(err error, format string, args ...any) *Error {
	return newError(KindSchema, err, format, args...)
}

// NewGenerationError は生成サービス側の失敗を包みます。
func NewGenerationError(err error, format string, args ...any) *Error {
	return newError(KindGeneration, err, format, args...)
}

func NewNotFoundError(format string, args ...any) *Error {
	return newError(KindNotFound, nil, format, args...)
}

// KindOf はエラーチェーンから最初に見つかった Kind を返します。
// 該当しない場合は KindInternal です。
func KindOf(err error) Kind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindInternal
}

// IsKind は err が指定の Kind を持つかどうかを判定します。
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
