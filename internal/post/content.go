// Package post 提供文章正文的派生计算：HTML 提取、阅读时长估算与摘要生成。
package post

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

const (
	// wordsPerMinute 阅读速度基准（词/分钟）。
	wordsPerMinute = 200
	// excerptRunes 摘要截取的最大字符数。
	excerptRunes = 150
)

// StripHTML 返回 HTML 正文的纯文本内容。
func StripHTML(content string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(content))
	if err != nil {
		// html 解析器极少失败，兜底返回原文
		return content
	}
	return doc.Text()
}

// WordCount 统计纯文本的可见词数（按空白切分）。
func WordCount(text string) int {
	return len(strings.Fields(text))
}

// ReadTime 估算阅读时长（分钟）：max(1, ceil(词数/200))。
func ReadTime(content string) int {
	words := WordCount(StripHTML(content))
	minutes := (words + wordsPerMinute - 1) / wordsPerMinute
	if minutes < 1 {
		minutes = 1
	}
	return minutes
}

// Excerpt 生成文章摘要。
//
// 优先使用 SEO 描述；否则取去除 HTML 后的前 150 个字符，截断时追加省略号。
func Excerpt(content string, seoDescription string) string {
	if seoDescription != "" {
		return seoDescription
	}
	text := strings.TrimSpace(StripHTML(content))
	runes := []rune(text)
	if len(runes) <= excerptRunes {
		return text
	}
	return string(runes[:excerptRunes]) + "..."
}
