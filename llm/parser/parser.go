package parser

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// FileType represents the type of document file
type FileType string

const (
	FileTypePDF     FileType = "pdf"
	FileTypeMD      FileType = "md"
	FileTypeHTML    FileType = "html"
	FileTypeTXT     FileType = "txt"
	FileTypeUnknown FileType = "unknown"
)

// Document represents a parsed document with its content and metadata
type Document struct {
	Content  string
	Title    string
	Source   string
	FileType FileType
	Metadata map[string]interface{}
}

// Parser defines the interface for document parsers
type Parser interface {
	// Parse reads and parses a document from the reader
	Parse(ctx context.Context, r io.Reader) (*Document, error)

	// FileType returns the file type this parser handles
	FileType() FileType
}

// Registry holds all registered parsers
type Registry struct {
	parsers map[FileType]Parser
}

// NewRegistry creates a new parser registry
func NewRegistry() *Registry {
	return &Registry{
		parsers: make(map[FileType]Parser),
	}
}

// Register adds a parser to the registry
func (r *Registry) Register(p Parser) {
	r.parsers[p.FileType()] = p
}

// GetParser returns a parser for the given file type
func (r *Registry) GetParser(ft FileType) (Parser, bool) {
	p, ok := r.parsers[ft]
	return p, ok
}

// GetParserForPath returns a parser for the given file path
func (r *Registry) GetParserForPath(filePath string) (Parser, bool) {
	return r.GetParser(FileTypeFromPath(filePath))
}

// Parse parses raw content whose type is taken from name's extension.
// It is used for uploads where only the original file name is known.
func (r *Registry) Parse(ctx context.Context, name string, rd io.Reader) (*Document, error) {
	p, ok := r.GetParserForPath(name)
	if !ok {
		return nil, fmt.Errorf("no parser found for file: %s", name)
	}

	doc, err := p.Parse(ctx, rd)
	if err != nil {
		return nil, err
	}

	doc.Source = name
	doc.FileType = p.FileType()
	if doc.Title == "" {
		doc.Title = ExtractTitle(doc.Content, name)
	}
	return doc, nil
}

// ParseFile parses a file using the appropriate parser
func (r *Registry) ParseFile(ctx context.Context, filePath string) (*Document, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()

	doc, err := r.Parse(ctx, filePath, f)
	if err != nil {
		return nil, err
	}

	if info, err := f.Stat(); err == nil {
		doc.Metadata["file_size"] = info.Size()
	}
	return doc, nil
}

// FileTypeFromPath returns the FileType for a path's extension
func FileTypeFromPath(filePath string) FileType {
	return FileTypeFromExt(strings.TrimPrefix(filepath.Ext(filePath), "."))
}

// FileTypeFromExt converts a file extension to FileType
func FileTypeFromExt(ext string) FileType {
	switch strings.ToLower(ext) {
	case "pdf":
		return FileTypePDF
	case "md", "markdown":
		return FileTypeMD
	case "html", "htm":
		return FileTypeHTML
	case "txt":
		return FileTypeTXT
	default:
		return FileTypeUnknown
	}
}

// String returns the string representation of the FileType
func (ft FileType) String() string {
	return string(ft)
}

// DefaultRegistry returns a registry with all default parsers registered
func DefaultRegistry() *Registry {
	reg := NewRegistry()
	reg.Register(NewPDFParser())
	reg.Register(NewTxtParser())
	reg.Register(NewMarkdownParser())
	reg.Register(NewHTMLParser())
	return reg
}

// ExtractTitle extracts a title from content (first line or heading)
func ExtractTitle(content, filePath string) string {
	content = strings.TrimSpace(content)
	if content == "" {
		return fileTitle(filePath)
	}

	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		line = strings.TrimSpace(strings.TrimLeft(line, "#"))
		if line != "" && len([]rune(line)) < 100 {
			return line
		}
		break
	}

	return fileTitle(filePath)
}

// fileTitle returns the base name of a path without its extension
func fileTitle(filePath string) string {
	if filePath == "" {
		return "Untitled"
	}
	base := filepath.Base(filePath)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
