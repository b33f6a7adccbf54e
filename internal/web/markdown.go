package web

import (
	"bytes"
	"fmt"
	"html/template"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

var markdownPolicy = newMarkdownPolicy()

func newMarkdownPolicy() *bluemonday.Policy {
	policy := bluemonday.UGCPolicy()
	policy.RequireNoFollowOnLinks(true)
	policy.AddTargetBlankToFullyQualifiedLinks(true)
	return policy
}

// RenderMarkdown converts source to sanitised HTML.
func RenderMarkdown(source []byte) (template.HTML, error) {
	md := goldmark.New(goldmark.WithExtensions(extension.Typographer))
	var buf bytes.Buffer
	if err := md.Convert(source, &buf); err != nil {
		return "", fmt.Errorf("web: render markdown: %w", err)
	}
	return template.HTML(markdownPolicy.SanitizeBytes(buf.Bytes())), nil
}

// Intro returns the landing copy shown above the card form.
func Intro() (template.HTML, error) {
	return RenderMarkdown(introMarkdown)
}
