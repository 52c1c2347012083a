package registry

import (
	"fmt"
	"io"
	"os"

	"github.com/rumor-ml/commons.systems/pjledger/internal/domain"
	"github.com/rumor-ml/commons.systems/pjledger/internal/parser"
	"github.com/rumor-ml/commons.systems/pjledger/internal/parsers/csv"
	"github.com/rumor-ml/commons.systems/pjledger/internal/parsers/ofx"
)

// HeaderSize is how many leading bytes parsers get for format detection.
const HeaderSize = 512

// Registry holds all registered parsers, tried in registration order
type Registry struct {
	parsers []parser.Parser
}

// New creates a registry with the built-in OFX and CSV parsers
func New() (*Registry, error) {
	r := &Registry{}
	for _, p := range []parser.Parser{ofx.NewParser(), csv.NewParser()} {
		if err := r.Register(p); err != nil {
			return nil, fmt.Errorf("failed to register built-in parser: %w", err)
		}
	}
	return r, nil
}

// MustNew is New for program initialization
func MustNew() *Registry {
	r, err := New()
	if err != nil {
		panic(err)
	}
	return r
}

// Register adds a parser. Names must be unique.
func (r *Registry) Register(p parser.Parser) error {
	if p == nil {
		return fmt.Errorf("parser cannot be nil")
	}
	for _, existing := range r.parsers {
		if existing.Name() == p.Name() {
			return fmt.Errorf("parser %q already registered", p.Name())
		}
	}
	r.parsers = append(r.parsers, p)
	return nil
}

// Detect returns the first parser accepting a file with this name and header.
func (r *Registry) Detect(name string, header []byte) (parser.Parser, error) {
	if len(header) > HeaderSize {
		header = header[:HeaderSize]
	}
	for _, p := range r.parsers {
		if p.CanParse(name, header) {
			return p, nil
		}
	}
	return nil, fmt.Errorf("no parser found for file %s: %w", name, domain.ErrInvalidInput)
}

// FindParser returns the best parser for a file on disk.
func (r *Registry) FindParser(path string) (parser.Parser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()

	header := make([]byte, HeaderSize)
	n, err := io.ReadFull(f, header)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return nil, fmt.Errorf("failed to read header from %s: %w", path, err)
	}

	return r.Detect(path, header[:n])
}

// ListParsers returns all registered parser names
func (r *Registry) ListParsers() []string {
	names := make([]string, len(r.parsers))
	for i, p := range r.parsers {
		names[i] = p.Name()
	}
	return names
}
