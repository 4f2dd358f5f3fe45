// Package importer parses bank exports and writes them to the payments table,
// matching each row to a client on the way.
package importer

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Parser converts a bank export into parsed rows.
type Parser interface {
	Parse(r io.Reader) ([]ParsedRow, error)
	Format() string
}

// Registry holds parsers keyed by format, which is also the file extension.
type Registry struct {
	parsers map[string]Parser
}

// FileInfo describes an export waiting in the import directory.
type FileInfo struct {
	Name string
	Path string
	Size int64
}

// NewRegistry creates an empty parser registry.
func NewRegistry() *Registry {
	return &Registry{parsers: make(map[string]Parser)}
}

// Register adds a parser. Panics on duplicate format.
func (r *Registry) Register(p Parser) {
	key := strings.ToLower(p.Format())
	if _, ok := r.parsers[key]; ok {
		panic("duplicate parser format: " + key)
	}
	r.parsers[key] = p
}

// Get returns the parser for format, or nil.
func (r *Registry) Get(format string) Parser {
	return r.parsers[strings.ToLower(format)]
}

// ForFile returns the parser matching the file's extension, or nil.
func (r *Registry) ForFile(name string) Parser {
	return r.Get(strings.TrimPrefix(filepath.Ext(name), "."))
}

// DefaultRegistry returns a registry with all built-in parsers.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(&CSVParser{})
	r.Register(&XLSXParser{})
	return r
}

// Parse parses r with the parser registered for name's extension.
func (r *Registry) Parse(name string, rd io.Reader) ([]ParsedRow, error) {
	p := r.ForFile(name)
	if p == nil {
		return nil, fmt.Errorf("unsupported file type %q", filepath.Ext(name))
	}
	rows, err := p.Parse(rd)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", filepath.Base(name), err)
	}
	return rows, nil
}

// ParseFile opens path and parses it as CSV or XLSX by extension.
func ParseFile(path string) ([]ParsedRow, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	return DefaultRegistry().Parse(path, f)
}

// importDir is the subdirectory for incoming exports.
const importDir = "import"

// processedDir is the subdirectory for imported exports.
const processedDir = "import/processed"

// Scan returns the exports in <root>/import/ that a registered parser accepts.
func Scan(root string) ([]FileInfo, error) {
	dir := filepath.Join(root, importDir)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading import dir: %w", err)
	}

	reg := DefaultRegistry()
	var files []FileInfo
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if reg.ForFile(e.Name()) == nil {
			continue
		}
		info, err := e.Info()
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", e.Name(), err)
		}
		files = append(files, FileInfo{
			Name: e.Name(),
			Path: filepath.Join(dir, e.Name()),
			Size: info.Size(),
		})
	}
	return files, nil
}

// MarkProcessed moves a file from import/ to import/processed/.
func MarkProcessed(root, fileName string) error {
	src := filepath.Join(root, importDir, fileName)
	dstDir := filepath.Join(root, processedDir)

	if err := os.MkdirAll(dstDir, 0o755); err != nil {
		return fmt.Errorf("creating processed dir: %w", err)
	}

	dst := filepath.Join(dstDir, fileName)
	if err := os.Rename(src, dst); err != nil {
		return fmt.Errorf("moving %s to processed: %w", fileName, err)
	}
	return nil
}
