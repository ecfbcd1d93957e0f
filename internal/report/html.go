package report

import (
	"bytes"
	"sync"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

var (
	mdOnce sync.Once
	md     goldmark.Markdown
)

func markdown() goldmark.Markdown {
	mdOnce.Do(func() {
		md = goldmark.New(goldmark.WithExtensions(extension.GFM))
	})
	return md
}

// RenderHTML converts a Markdown report to an HTML fragment.
func RenderHTML(source string) (string, error) {
	var buf bytes.Buffer
	if err := markdown().Convert([]byte(source), &buf); err != nil {
		return "", err
	}
	return buf.String(), nil
}
