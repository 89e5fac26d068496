// Package security はアプリケーションのセキュリティ機能を提供する。
//
// ContentSanitizer はユーザーが投稿するテキスト（投稿、コメント、チャットメッセージ、
// プロジェクト説明）を保存前にサニタイズする。
// bluemondayの許可リストポリシーにより、書式タグとリンク以外は全て除去する。
package security

import (
	"github.com/microcosm-cc/bluemonday"
)

// ContentSanitizer はユーザー入力HTMLのサニタイズ機能のインターフェース。
type ContentSanitizer interface {
	// Sanitize は許可タグ以外を除去した安全なHTMLを返す。
	// 同一入力に対して常に同一出力を返す。
	Sanitize(raw string) string
}

// contentSanitizer はContentSanitizerの実装。
// bluemondayのポリシーはスレッドセーフ。
type contentSanitizer struct {
	policy *bluemonday.Policy
}

// NewContentSanitizer はユーザー投稿用のポリシーを構築したサニタイザーを生成する。
//   - 許可タグ: p, br, ul, ol, li, blockquote, pre, code, strong, em, a
//   - 画像は許可しない（プロフィール画像はアップロード経由のみ）
//   - aのhrefはhttp, https, mailtoのみ。rel="nofollow noreferrer"とtarget="_blank"を付与
func NewContentSanitizer() *contentSanitizer {
	p := bluemonday.NewPolicy()

	p.AllowElements(
		"p", "br", "ul", "ol", "li",
		"blockquote", "pre", "code",
		"strong", "em",
	)

	p.AllowAttrs("href").OnElements("a")
	p.AllowURLSchemes("http", "https", "mailto")
	p.AllowRelativeURLs(false)
	p.RequireNoFollowOnLinks(true)
	p.RequireNoReferrerOnLinks(true)
	p.AddTargetBlankToFullyQualifiedLinks(true)

	return &contentSanitizer{policy: p}
}

// Sanitize はHTMLをサニタイズする。
func (s *contentSanitizer) Sanitize(raw string) string {
	return s.policy.Sanitize(raw)
}
