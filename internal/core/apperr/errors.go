// Package apperr はドメイン横断で利用するエラー種別を定義する。
// HTTP層はここで定義したセンチネルエラーをステータスコードへ変換する。
package apperr

import "errors"

var (
	// ErrValidation は入力値が不正な場合のエラー
	ErrValidation = errors.New("validation failed")

	// ErrUnauthenticated は呼び出し元の身元を解決できない場合のエラー
	ErrUnauthenticated = errors.New("unauthenticated")

	// ErrForbidden は身元は解決できたがリソースの所有者でない場合のエラー
	ErrForbidden = errors.New("forbidden")

	// ErrNotFound はリソースが存在しない場合のエラー
	ErrNotFound = errors.New("not found")

	// ErrEmbedding はEmbedding生成に失敗した場合のエラー
	ErrEmbedding = errors.New("embedding failed")

	// ErrRetrieval はベクトル検索に失敗した場合のエラー
	ErrRetrieval = errors.New("retrieval failed")

	// ErrUpstream は外部サービス呼び出しの汎用的な失敗
	ErrUpstream = errors.New("upstream failure")
)
