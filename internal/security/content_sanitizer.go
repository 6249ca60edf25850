// Package security はアプリケーションのセキュリティ機能を提供する。
//
// ContentSanitizerService はユーザーが入力するオークションのタイトル・説明文を
// サニタイズし、XSS攻撃などのセキュリティリスクから閲覧者を保護する。
// bluemondayライブラリを使用した許可リストベースのポリシーで、
// 安全なタグと属性のみを通過させる。
package security

import (
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// ContentSanitizerService はユーザー入力テキストのサニタイズ機能のインターフェース。
// オークションの作成・更新時、保存前の入口で使用する。
type ContentSanitizerService interface {
	// SanitizeTitle はタイトルからすべてのHTMLタグを除去したプレーンテキストを返す。
	// 前後の空白は取り除く。同一入力に対して常に同一出力を返す（冪等）。
	SanitizeTitle(raw string) string

	// SanitizeDescription は説明文をサニタイズして安全なHTMLを返す。
	// 許可タグ（p, br, ul, ol, li, blockquote, pre, code, strong, em）のみを通過させ、
	// script, iframe, styleタグおよびon*イベント属性を除去する。
	// 空文字列の入力には空文字列を返す。
	SanitizeDescription(raw string) string
}

// contentSanitizer はContentSanitizerServiceの実装。
// bluemondayのポリシーを保持し、スレッドセーフにサニタイズ処理を行う。
type contentSanitizer struct {
	titlePolicy       *bluemonday.Policy
	descriptionPolicy *bluemonday.Policy
}

// NewContentSanitizer はContentSanitizerServiceの新しいインスタンスを生成する。
// タイトルは全タグ除去のStrictPolicy、説明文は許可リストベースのカスタムポリシー。
func NewContentSanitizer() *contentSanitizer {
	desc := bluemonday.NewPolicy()

	// 書式タグのみ許可する。リンクと画像は出品説明文には不要で、
	// 許可リストに含めないことでscript等と同様に自動的に除去される。
	desc.AllowElements(
		"p", "br", "ul", "ol", "li",
		"blockquote", "pre", "code",
		"strong", "em",
	)

	return &contentSanitizer{
		titlePolicy:       bluemonday.StrictPolicy(),
		descriptionPolicy: desc,
	}
}

// SanitizeTitle はタイトルからすべてのHTMLタグを除去したプレーンテキストを返す。
func (s *contentSanitizer) SanitizeTitle(raw string) string {
	return strings.TrimSpace(s.titlePolicy.Sanitize(raw))
}

// SanitizeDescription は説明文をサニタイズして安全なHTMLを返す。
func (s *contentSanitizer) SanitizeDescription(raw string) string {
	if raw == "" {
		return ""
	}
	return s.descriptionPolicy.Sanitize(raw)
}

// compile-time interface check
var _ ContentSanitizerService = (*contentSanitizer)(nil)
