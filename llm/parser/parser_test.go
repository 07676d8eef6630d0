package parser

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileTypeFromExt(t *testing.T) {
	tests := []struct {
		ext  string
		want FileType
	}{
		{"pdf", FileTypePDF},
		{"PDF", FileTypePDF},
		{"md", FileTypeMD},
		{"markdown", FileTypeMD},
		{"htm", FileTypeHTML},
		{"html", FileTypeHTML},
		{"txt", FileTypeTXT},
		{"docx", FileTypeUnknown},
		{"", FileTypeUnknown},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FileTypeFromExt(tt.ext), tt.ext)
	}
}

func TestRegistryParse(t *testing.T) {
	reg := DefaultRegistry()
	ctx := context.Background()

	doc, err := reg.Parse(ctx, "notes.txt", strings.NewReader("Capitals\r\nThe capital of France is Paris."))
	require.NoError(t, err)
	assert.Equal(t, "Capitals\nThe capital of France is Paris.", doc.Content)
	assert.Equal(t, "Capitals", doc.Title)
	assert.Equal(t, FileTypeTXT, doc.FileType)
	assert.Equal(t, "notes.txt", doc.Source)

	_, err = reg.Parse(ctx, "report.docx", strings.NewReader("x"))
	assert.Error(t, err)
}

func TestRegistryParseFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "guide.md")
	require.NoError(t, os.WriteFile(path, []byte("# Guide\n\nRead the **manual**."), 0o644))

	doc, err := DefaultRegistry().ParseFile(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "Guide", doc.Title)
	assert.Contains(t, doc.Content, "Read the manual.")
	assert.EqualValues(t, 29, doc.Metadata["file_size"])
}

func TestMarkdownParser(t *testing.T) {
	src := "---\ntitle: \"Travel Notes\"\nauthor: sam\n---\n# Europe\n\nSee [the map](https://example.com/map) and ![a photo](p.png).\n\n\n\n__Paris__ is lovely."

	doc, err := NewMarkdownParser().Parse(context.Background(), strings.NewReader(src))
	require.NoError(t, err)

	assert.Equal(t, "Travel Notes", doc.Title)
	assert.Equal(t, "sam", doc.Metadata["author"])
	assert.Equal(t, true, doc.Metadata["has_frontmatter"])
	assert.Equal(t, "Europe\n\nSee the map and a photo.\n\nParis is lovely.", doc.Content)
}

func TestMarkdownParserUnterminatedFrontmatter(t *testing.T) {
	doc, err := NewMarkdownParser().Parse(context.Background(), strings.NewReader("---\nnot: closed\nbody"))
	require.NoError(t, err)
	assert.Equal(t, false, doc.Metadata["has_frontmatter"])
	assert.Contains(t, doc.Content, "body")
}

func TestHTMLParser(t *testing.T) {
	src := `<html><head><title>Atlas</title><style>p{color:red}</style></head>
<body><h1>Countries</h1><script>alert(1)</script>
<p>The capital of France is <b>Paris</b>.</p>
<ul><li>One</li><li>Two</li></ul></body></html>`

	doc, err := NewHTMLParser().Parse(context.Background(), strings.NewReader(src))
	require.NoError(t, err)

	assert.Equal(t, "Atlas", doc.Title)
	assert.Contains(t, doc.Content, "Countries")
	assert.Contains(t, doc.Content, "The capital of France is **Paris**.")
	assert.NotContains(t, doc.Content, "alert")
	assert.NotContains(t, doc.Content, "color:red")
	assert.Equal(t, 1, doc.Metadata["heading_count"])
}

func TestPDFParserRejectsGarbage(t *testing.T) {
	_, err := NewPDFParser().Parse(context.Background(), strings.NewReader("definitely not a pdf"))
	assert.Error(t, err)
}

func TestRecoverPDF(t *testing.T) {
	doc, err := recoverPDF(func() (*Document, error) {
		panic("malformed font")
	})
	assert.Nil(t, doc)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse PDF: malformed font")

	want := &Document{Content: "ok"}
	doc, err = recoverPDF(func() (*Document, error) { return want, nil })
	require.NoError(t, err)
	assert.Same(t, want, doc)
}

func TestExtractTitle(t *testing.T) {
	assert.Equal(t, "Hello", ExtractTitle("\n\n## Hello\nworld", "x.md"))
	assert.Equal(t, "report", ExtractTitle("", "/tmp/report.pdf"))
	assert.Equal(t, "Untitled", ExtractTitle("   ", ""))
	assert.Equal(t, "long", ExtractTitle(strings.Repeat("a", 120), "dir/long.txt"))
}
