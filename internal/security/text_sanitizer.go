// Package security はアプリケーションのセキュリティ機能を提供する。
//
// TextSanitizerService はユーザー入力の表示名・企業名などのテキスト項目を
// サニタイズし、XSS攻撃などのセキュリティリスクからユーザーを保護する。
// これらの項目は2つのフロントエンド（マーケティングサイトとERPアプリ）で
// そのまま表示されるため、保存前に必ずこのサービスを通す。
package security

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// TextSanitizerService はテキスト項目のサニタイズ機能のインターフェースを定義する。
type TextSanitizerService interface {
	// SanitizeName は表示名・企業名からHTMLマークアップを全て除去し、
	// 前後の空白をトリムした文字列を返す。
	// 名前にマークアップが正当に含まれることはないため、許可タグはゼロ。
	// 同一入力に対して常に同一出力を返す（冪等）。
	SanitizeName(raw string) string
}

// textSanitizer はTextSanitizerServiceの実装。
// bluemondayのStrictPolicyを保持し、スレッドセーフにサニタイズ処理を行う。
type textSanitizer struct {
	policy *bluemonday.Policy
}

// NewTextSanitizer はTextSanitizerServiceの新しいインスタンスを生成する。
// StrictPolicy（全タグ除去）を使用する。
func NewTextSanitizer() *textSanitizer {
	return &textSanitizer{
		policy: bluemonday.StrictPolicy(),
	}
}

// SanitizeName は表示名・企業名をサニタイズする。
func (s *textSanitizer) SanitizeName(raw string) string {
	// StrictPolicyはタグ除去後にHTMLエンティティとしてエスケープするため、
	// プレーンテキストに戻してから返す（保存するのはテキストであってHTMLではない）。
	cleaned := s.policy.Sanitize(raw)
	return strings.TrimSpace(html.UnescapeString(cleaned))
}

// compile-time interface check
var _ TextSanitizerService = (*textSanitizer)(nil)
