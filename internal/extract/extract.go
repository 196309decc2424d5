// Package extract walks a working tree, classifies files by language and
// extracts symbols and outbound references with tree-sitter grammars.
package extract

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/sourcegraph/conc/pool"
)

// DefaultMaxFileSize is the ceiling above which files are indexed for path
// and hash only (1 MiB).
const DefaultMaxFileSize = 1 << 20

// Reference types.
const (
	RefImport        = "import"
	RefReExport      = "re_export"
	RefExportAll     = "export_all"
	RefDynamicImport = "dynamic_import"
)

// Symbol kinds, the fixed output shape shared by all language extractors.
const (
	KindFunction   = "function"
	KindClass      = "class"
	KindInterface  = "interface"
	KindType       = "type"
	KindVariable   = "variable"
	KindConstant   = "constant"
	KindMethod     = "method"
	KindProperty   = "property"
	KindModule     = "module"
	KindNamespace  = "namespace"
	KindEnum       = "enum"
	KindEnumMember = "enum_member"
)

// Symbol is one extracted declaration.
type Symbol struct {
	Name      string
	Kind      string
	Signature string
	LineStart int
	LineEnd   int
	Exported  bool
}

// Reference is one outbound import edge before resolution. Specifier is the
// raw import string as written in the source.
type Reference struct {
	Specifier  string
	SymbolName string
	Type       string
}

// FileScan is the extraction result for one file.
type FileScan struct {
	Path        string
	Language    string
	ContentHash string
	Size        int64
	Content     string
	Symbols     []Symbol
	References  []Reference

	// Oversize marks files above the size ceiling: indexed for path and
	// hash only.
	Oversize bool
}

// Options configures an Extractor.
type Options struct {
	// Ignore lists path substrings to skip, in addition to the built-ins.
	Ignore []string

	// MaxFileSize overrides DefaultMaxFileSize when positive.
	MaxFileSize int64

	// Logger is an optional structured logger. Nil uses slog default.
	Logger *slog.Logger

	// Workers bounds parallel file extraction. Zero uses GOMAXPROCS.
	Workers int
}

// builtinIgnores are directory names never worth indexing.
var builtinIgnores = []string{
	".git", "node_modules", ".kotadb", ".worktrees", "dist", "build",
	"__pycache__", ".venv", "vendor",
}

// Extractor scans a working tree rooted at Root.
type Extractor struct {
	root    string
	ignore  []string
	maxSize int64
	logger  *slog.Logger
	workers int
}

// New creates an Extractor for the given working-tree root.
func New(root string, opts Options) *Extractor {
	maxSize := opts.MaxFileSize
	if maxSize <= 0 {
		maxSize = DefaultMaxFileSize
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Extractor{
		root:    root,
		ignore:  append(append([]string{}, builtinIgnores...), opts.Ignore...),
		maxSize: maxSize,
		logger:  logger,
		workers: opts.Workers,
	}
}

// Enumerate lists candidate relative paths under the root whose language is
// supported, sorted lexicographically.
func (e *Extractor) Enumerate() ([]string, error) {
	var paths []string

	err := filepath.WalkDir(e.root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}

		name := d.Name()

		if d.IsDir() {
			if path != e.root && e.ignored(name) {
				return filepath.SkipDir
			}

			return nil
		}

		if !d.Type().IsRegular() {
			return nil
		}

		rel, relErr := filepath.Rel(e.root, path)
		if relErr != nil {
			return relErr
		}

		rel = filepath.ToSlash(rel)

		if LanguageForPath(rel) == "" {
			return nil
		}

		paths = append(paths, rel)

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", e.root, err)
	}

	sort.Strings(paths)

	return paths, nil
}

// Scan enumerates and extracts every supported file in parallel. Per-file
// parse failures degrade that file to path-and-hash indexing and are logged,
// never fatal.
func (e *Extractor) Scan(ctx context.Context) ([]FileScan, error) {
	paths, err := e.Enumerate()
	if err != nil {
		return nil, err
	}

	return e.ScanPaths(ctx, paths)
}

// ScanPaths extracts the given relative paths in parallel, preserving input
// order in the result. Paths that no longer exist are skipped.
func (e *Extractor) ScanPaths(ctx context.Context, paths []string) ([]FileScan, error) {
	results := make([]*FileScan, len(paths))

	var mu sync.Mutex

	p := pool.New().WithContext(ctx)
	if e.workers > 0 {
		p = p.WithMaxGoroutines(e.workers)
	}

	for i, rel := range paths {
		p.Go(func(ctx context.Context) error {
			scan, scanErr := e.ExtractFile(rel)
			if scanErr != nil {
				if os.IsNotExist(scanErr) {
					return nil
				}

				return scanErr
			}

			mu.Lock()
			results[i] = scan
			mu.Unlock()

			return nil
		})
	}

	err := p.Wait()
	if err != nil {
		return nil, err
	}

	out := make([]FileScan, 0, len(results))

	for _, r := range results {
		if r != nil {
			out = append(out, *r)
		}
	}

	return out, nil
}

// ExtractFile reads and extracts a single file identified by its relative
// path. Unsupported languages return a nil scan.
func (e *Extractor) ExtractFile(rel string) (*FileScan, error) {
	content, err := os.ReadFile(filepath.Join(e.root, filepath.FromSlash(rel)))
	if err != nil {
		return nil, err
	}

	lang := LanguageFor(rel, content)
	if lang == "" {
		return nil, nil
	}

	scan := &FileScan{
		Path:        rel,
		Language:    lang,
		ContentHash: hashContent(content),
		Size:        int64(len(content)),
		Content:     string(content),
	}

	if scan.Size > e.maxSize {
		scan.Oversize = true
		scan.Content = ""

		return scan, nil
	}

	syms, refs, err := extractSymbols(lang, content)
	if err != nil {
		// One bad file never fails the scan.
		e.logger.Warn("symbol extraction failed",
			"path", rel, "language", lang, "error", err)

		return scan, nil
	}

	scan.Symbols = syms
	scan.References = refs

	return scan, nil
}

func (e *Extractor) ignored(name string) bool {
	for _, ig := range e.ignore {
		if name == ig || strings.Contains(name, ig) {
			return true
		}
	}

	return false
}

// hashContent computes the 64-hex sha256 digest over raw file bytes, the
// incremental-change key.
func hashContent(content []byte) string {
	sum := sha256.Sum256(content)

	return hex.EncodeToString(sum[:])
}
