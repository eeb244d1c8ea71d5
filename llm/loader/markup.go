package loader

import (
	"bytes"
	"fmt"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"gopkg.in/yaml.v3"
)

var markdown = goldmark.New(goldmark.WithExtensions(extension.GFM))

// parseMarkdown renders Markdown to HTML and keeps only the text.
// YAML frontmatter, when present, becomes the record metadata.
func parseMarkdown(data []byte) ([]Record, error) {
	meta, body := splitFrontmatter(data)

	var html bytes.Buffer
	if err := markdown.Convert(body, &html); err != nil {
		return nil, fmt.Errorf("failed to render markdown: %w", err)
	}

	doc, err := goquery.NewDocumentFromReader(&html)
	if err != nil {
		return nil, fmt.Errorf("failed to parse rendered markdown: %w", err)
	}

	return []Record{{Text: cleanLines(doc.Text()), Metadata: meta}}, nil
}

// splitFrontmatter separates a leading "---" delimited YAML block
func splitFrontmatter(data []byte) (map[string]any, []byte) {
	meta := map[string]any{}

	content := string(data)
	if !strings.HasPrefix(content, "---\n") && !strings.HasPrefix(content, "---\r\n") {
		return meta, data
	}

	rest := content[strings.Index(content, "\n")+1:]
	end := strings.Index(rest, "\n---")
	if end < 0 {
		return meta, data
	}

	if err := yaml.Unmarshal([]byte(rest[:end]), &meta); err != nil {
		// 不是合法的 frontmatter，按正文处理
		return map[string]any{}, data
	}
	if meta == nil {
		meta = map[string]any{}
	}

	body := rest[end+len("\n---"):]
	if i := strings.Index(body, "\n"); i >= 0 {
		body = body[i+1:]
	} else {
		body = ""
	}
	return meta, []byte(body)
}

// parseHTML converts an HTML page to Markdown, which keeps headings and
// lists readable for the model. The page title goes into metadata.
func parseHTML(data []byte) ([]Record, error) {
	meta := map[string]any{}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}
	if title := strings.TrimSpace(doc.Find("title").First().Text()); title != "" {
		meta["title"] = title
	}
	doc.Find("script, style, head").Remove()

	body, err := doc.Find("body").Html()
	if err != nil || strings.TrimSpace(body) == "" {
		body = string(data)
	}

	converter := md.NewConverter("", true, nil)
	text, err := converter.ConvertString(body)
	if err != nil {
		return nil, fmt.Errorf("failed to convert HTML: %w", err)
	}

	return []Record{{Text: cleanLines(text), Metadata: meta}}, nil
}

// cleanLines trims every line and drops the blank ones
func cleanLines(s string) string {
	var out []string
	for _, line := range strings.Split(s, "\n") {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return strings.Join(out, "\n")
}
