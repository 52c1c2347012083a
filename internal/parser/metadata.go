package parser

import (
	"fmt"
	"time"
)

// Metadata contains context about the file being parsed.
// Extracted from directory structure: {root}/{client}/{account}/[{period}/]file.ext
//
// Create instances using NewMetadata(filePath, detectedAt). Optional fields
// (client, account, period) are set after construction.
//
// Empty Client() or Account() means the file path didn't match the expected
// layout; the importer then requires them from flags or the request.
type Metadata struct {
	filePath   string
	client     string // e.g. "padaria-sao-jorge"
	account    string // e.g. "itau-1234"
	bankName   string // optional display name, e.g. "Itaú"
	period     string // e.g. "2025-01"
	detectedAt time.Time
}

// NewMetadata creates a new Metadata instance with validated required fields.
func NewMetadata(filePath string, detectedAt time.Time) (*Metadata, error) {
	if filePath == "" {
		return nil, fmt.Errorf("file path cannot be empty")
	}
	if detectedAt.IsZero() {
		return nil, fmt.Errorf("detected time cannot be zero")
	}
	return &Metadata{
		filePath:   filePath,
		detectedAt: detectedAt,
	}, nil
}

// FilePath returns the file path or object name
func (m *Metadata) FilePath() string { return m.filePath }

// Client returns the client ID inferred from directory structure
func (m *Metadata) Client() string { return m.client }

// Account returns the account ID inferred from directory structure
func (m *Metadata) Account() string { return m.account }

// BankName returns the bank display name, if known
func (m *Metadata) BankName() string { return m.bankName }

// Period returns the period directory, empty if absent
func (m *Metadata) Period() string { return m.period }

// DetectedAt returns the timestamp when the file was detected
func (m *Metadata) DetectedAt() time.Time { return m.detectedAt }

func (m *Metadata) SetClient(client string) { m.client = client }
func (m *Metadata) SetAccount(account string) { m.account = account }
func (m *Metadata) SetBankName(name string) { m.bankName = name }
func (m *Metadata) SetPeriod(period string) { m.period = period }

// sourceName labels errors with the file path when there is one.
func (m *Metadata) sourceName() string {
	if m == nil || m.filePath == "" {
		return "statement"
	}
	return m.filePath
}

// SourceName returns a label for errors raised while parsing this file.
func SourceName(meta *Metadata) string {
	return meta.sourceName()
}
