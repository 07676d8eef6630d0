package parser

import (
	"context"
	"fmt"
	"io"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

var (
	headingPattern = regexp.MustCompile(`(?m)^#{1,6}\s+`)
	imagePattern   = regexp.MustCompile(`!\[([^\]]*)\]\([^)]+\)`)
	linkPattern    = regexp.MustCompile(`\[([^\]]+)\]\([^)]+\)`)
	emphasisMarks  = strings.NewReplacer("**", "", "__", "")
)

// MarkdownParser handles markdown files
type MarkdownParser struct {
	// stripCodeBlocks whether to remove fenced code blocks from content
	stripCodeBlocks bool
}

// NewMarkdownParser creates a new markdown parser
func NewMarkdownParser() *MarkdownParser {
	return &MarkdownParser{}
}

// Parse reads and parses markdown from the reader
func (p *MarkdownParser) Parse(ctx context.Context, r io.Reader) (*Document, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read markdown: %w", err)
	}

	raw := strings.ReplaceAll(string(data), "\r\n", "\n")
	metadata, body := splitFrontmatter(raw)
	metadata["has_frontmatter"] = len(body) != len(raw)

	title := extractHeading(body)
	if t, ok := metadata["title"].(string); ok && t != "" {
		title = t
	}

	if p.stripCodeBlocks {
		body = regexp.MustCompile("(?s)```.*?```").ReplaceAllString(body, "")
	}

	metadata["file_size"] = len(data)

	return &Document{
		Content:  cleanMarkdown(body),
		Title:    title,
		Metadata: metadata,
	}, nil
}

// FileType returns the file type this parser handles
func (p *MarkdownParser) FileType() FileType {
	return FileTypeMD
}

// splitFrontmatter separates a leading "---" YAML block from the body.
// An unterminated or malformed block is treated as body text.
func splitFrontmatter(content string) (map[string]interface{}, string) {
	metadata := make(map[string]interface{})

	lines := strings.Split(content, "\n")
	if len(lines) < 2 || strings.TrimSpace(lines[0]) != "---" {
		return metadata, content
	}

	for i := 1; i < len(lines); i++ {
		if strings.TrimSpace(lines[i]) != "---" {
			continue
		}
		block := strings.Join(lines[1:i], "\n")
		if err := yaml.Unmarshal([]byte(block), &metadata); err != nil {
			return make(map[string]interface{}), content
		}
		if metadata == nil {
			metadata = make(map[string]interface{})
		}
		return metadata, strings.Join(lines[i+1:], "\n")
	}
	return metadata, content
}

// extractHeading returns the first heading, or the first short line
func extractHeading(content string) string {
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		title := strings.TrimSpace(strings.TrimLeft(line, "#"))
		if title != "" && len([]rune(title)) < 100 {
			return title
		}
		return ""
	}
	return ""
}

// cleanMarkdown removes markup that adds noise to embeddings but keeps sentence punctuation
func cleanMarkdown(content string) string {
	content = headingPattern.ReplaceAllString(content, "")
	content = imagePattern.ReplaceAllString(content, "$1")
	content = linkPattern.ReplaceAllString(content, "$1")
	content = emphasisMarks.Replace(content)
	return collapseBlankLines(content)
}
