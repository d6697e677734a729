package core

import (
	"bufio"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// AuditLogLevel defines how much of the scanned text is kept in the trail
type AuditLogLevel string

const (
	// AuditLogLevelMinimal keeps only the hash and length of the text
	AuditLogLevelMinimal AuditLogLevel = "minimal"

	// AuditLogLevelStandard also keeps a short preview of the text
	AuditLogLevelStandard AuditLogLevel = "standard"

	// AuditLogLevelVerbose keeps the full text
	AuditLogLevelVerbose AuditLogLevel = "verbose"
)

const previewLength = 100

// ErrAuditRecordNotFound is returned by Find when no record has the requested id
var ErrAuditRecordNotFound = errors.New("audit record not found")

// AuditConfig configures the audit trail
type AuditConfig struct {
	Enabled bool          `yaml:"enabled"`
	Path    string        `yaml:"path"`
	Level   AuditLogLevel `yaml:"level"`

	// SigningKey turns signatures into HMAC-SHA256; without it records carry a plain SHA-256
	SigningKey string `yaml:"signing_key"`

	// RotationSize is the file size in bytes after which the trail rotates
	RotationSize int64 `yaml:"rotation_size"`

	// RetentionDays is how long rotated files are kept
	RetentionDays int `yaml:"retention_days"`
}

// DefaultAuditConfig returns the trail defaults
func DefaultAuditConfig() AuditConfig {
	return AuditConfig{
		Enabled:       false,
		Path:          "audit_logs/audit.jsonl",
		Level:         AuditLogLevelStandard,
		RotationSize:  100 * 1024 * 1024,
		RetentionDays: 90,
	}
}

// ReportSummary is the part of a report kept in the trail
type ReportSummary struct {
	Score         int      `json:"score"`
	IsSafe        bool     `json:"is_safe"`
	Violations    int      `json:"violations"`
	Critical      int      `json:"critical"`
	RuleIDs       []string `json:"rule_ids"`
	Jurisdictions []string `json:"jurisdictions"`
	RuleVersion   uint64   `json:"rule_version"`
}

// AuditRecord is one tamper-evident line of the trail
type AuditRecord struct {
	AuditID    string        `json:"audit_id"`
	Timestamp  string        `json:"timestamp"`
	UserID     string        `json:"user_id,omitempty"`
	TextHash   string        `json:"text_hash"`
	TextLength int           `json:"text_length"`
	Text       string        `json:"text,omitempty"`
	Report     ReportSummary `json:"report"`
	Signature  string        `json:"signature"`
}

// AuditTrail appends signed scan records to a JSONL file
type AuditTrail struct {
	mu          sync.Mutex
	config      AuditConfig
	file        *os.File
	writer      io.Writer
	currentSize int64
	now         func() time.Time
}

// NewAuditTrail opens (or creates) the trail file described by config
func NewAuditTrail(config AuditConfig) (*AuditTrail, error) {
	if config.Path == "" {
		config.Path = DefaultAuditConfig().Path
	}
	if config.Level == "" {
		config.Level = AuditLogLevelStandard
	}
	if config.RotationSize <= 0 {
		config.RotationSize = DefaultAuditConfig().RotationSize
	}

	t := &AuditTrail{
		config: config,
		now:    func() time.Time { return time.Now().UTC() },
	}
	if err := t.initialize(); err != nil {
		return nil, err
	}
	return t, nil
}

// initialize opens the trail file for appending
func (t *AuditTrail) initialize() error {
	dir := filepath.Dir(t.config.Path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create audit directory: %w", err)
		}
	}

	f, err := os.OpenFile(t.config.Path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open audit file: %w", err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return fmt.Errorf("failed to get audit file info: %w", err)
	}

	t.file = f
	t.writer = f
	t.currentSize = info.Size()
	return nil
}

// maybeRotate renames the current file once it has grown past the rotation size
func (t *AuditTrail) maybeRotate() error {
	if t.currentSize < t.config.RotationSize {
		return nil
	}

	t.file.Close()

	rotatedPath := fmt.Sprintf("%s.%s", t.config.Path, t.now().Format("20060102-150405.000000000"))
	if err := os.Rename(t.config.Path, rotatedPath); err != nil {
		return fmt.Errorf("failed to rotate audit file: %w", err)
	}

	t.cleanupOldFiles()
	return t.initialize()
}

// cleanupOldFiles removes rotated files older than the retention period
func (t *AuditTrail) cleanupOldFiles() {
	if t.config.RetentionDays <= 0 {
		return
	}
	cutoff := t.now().AddDate(0, 0, -t.config.RetentionDays)

	files, err := filepath.Glob(t.config.Path + ".*")
	if err != nil {
		return
	}
	for _, file := range files {
		info, err := os.Stat(file)
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			os.Remove(file)
		}
	}
}

// Record appends a signed record for one scan and returns it
func (t *AuditTrail) Record(userID, text string, report *AuditReport) (AuditRecord, error) {
	sum := sha256.Sum256([]byte(text))
	record := AuditRecord{
		AuditID:    uuid.NewString(),
		Timestamp:  t.now().Format(time.RFC3339Nano),
		UserID:     userID,
		TextHash:   hex.EncodeToString(sum[:]),
		TextLength: len(text),
		Report:     summarize(report),
	}

	switch t.config.Level {
	case AuditLogLevelVerbose:
		record.Text = text
	case AuditLogLevelStandard:
		record.Text = preview(text)
	}

	sig, err := t.sign(record)
	if err != nil {
		return AuditRecord{}, err
	}
	record.Signature = sig

	line, err := json.Marshal(record)
	if err != nil {
		return AuditRecord{}, fmt.Errorf("failed to marshal audit record: %w", err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.maybeRotate(); err != nil {
		return AuditRecord{}, err
	}

	n, err := fmt.Fprintln(t.writer, string(line))
	if err != nil {
		return AuditRecord{}, fmt.Errorf("failed to write audit record: %w", err)
	}
	t.currentSize += int64(n)

	return record, nil
}

func preview(text string) string {
	runes := []rune(text)
	if len(runes) <= previewLength {
		return text
	}
	return string(runes[:previewLength]) + "... [truncated]"
}

func summarize(report *AuditReport) ReportSummary {
	s := ReportSummary{
		RuleIDs:       []string{},
		Jurisdictions: []string{},
	}
	if report == nil {
		return s
	}
	s.Score = report.Score
	s.IsSafe = report.IsSafe
	s.Violations = len(report.FlaggedItems)
	s.RuleVersion = report.Metadata.RuleVersion
	s.Jurisdictions = append(s.Jurisdictions, report.Metadata.Jurisdictions...)
	for _, item := range report.FlaggedItems {
		s.RuleIDs = append(s.RuleIDs, item.ID)
		if item.Severity == SeverityCritical {
			s.Critical++
		}
	}
	return s
}

// sign computes the signature over every field of the record except the signature
func (t *AuditTrail) sign(record AuditRecord) (string, error) {
	record.Signature = ""
	payload, err := json.Marshal(record)
	if err != nil {
		return "", fmt.Errorf("failed to marshal audit record for signing: %w", err)
	}

	if t.config.SigningKey == "" {
		sum := sha256.Sum256(payload)
		return hex.EncodeToString(sum[:]), nil
	}
	mac := hmac.New(sha256.New, []byte(t.config.SigningKey))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil)), nil
}

// Verify reports whether record still carries the signature it was written with
func (t *AuditTrail) Verify(record AuditRecord) bool {
	expected, err := t.sign(record)
	if err != nil {
		return false
	}
	return hmac.Equal([]byte(expected), []byte(record.Signature))
}

// Close flushes and closes the trail file
func (t *AuditTrail) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.file == nil {
		return nil
	}
	err := t.file.Close()
	t.file = nil
	return err
}

// files returns rotated files oldest first, followed by the live file
func (t *AuditTrail) files() []string {
	rotated, _ := filepath.Glob(t.config.Path + ".*")
	sort.Strings(rotated)
	return append(rotated, t.config.Path)
}

// Records reads every record in the trail, oldest first, passing each to fn until it
// returns false
func (t *AuditTrail) Records(fn func(AuditRecord) bool) error {
	for _, path := range t.files() {
		cont, err := readRecords(path, fn)
		if err != nil {
			return err
		}
		if !cont {
			return nil
		}
	}
	return nil
}

func readRecords(path string, fn func(AuditRecord) bool) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return true, nil
		}
		return false, fmt.Errorf("failed to open audit file: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		var record AuditRecord
		if err := json.Unmarshal(scanner.Bytes(), &record); err != nil {
			continue
		}
		if !fn(record) {
			return false, nil
		}
	}
	if err := scanner.Err(); err != nil {
		return false, fmt.Errorf("failed to read audit file: %w", err)
	}
	return true, nil
}

// Find returns the record with the given audit id
func (t *AuditTrail) Find(auditID string) (AuditRecord, error) {
	var found *AuditRecord
	err := t.Records(func(r AuditRecord) bool {
		if r.AuditID == auditID {
			found = &r
			return false
		}
		return true
	})
	if err != nil {
		return AuditRecord{}, err
	}
	if found == nil {
		return AuditRecord{}, ErrAuditRecordNotFound
	}
	return *found, nil
}

// ByDate returns every record written on the given UTC calendar day
func (t *AuditTrail) ByDate(day time.Time) ([]AuditRecord, error) {
	want := day.UTC().Format("2006-01-02")
	var out []AuditRecord
	err := t.Records(func(r AuditRecord) bool {
		ts, err := time.Parse(time.RFC3339Nano, r.Timestamp)
		if err == nil && ts.UTC().Format("2006-01-02") == want {
			out = append(out, r)
		}
		return true
	})
	return out, err
}

// VerifyAll checks every record and returns the ids of those that fail verification
func (t *AuditTrail) VerifyAll() (checked int, tampered []string, err error) {
	err = t.Records(func(r AuditRecord) bool {
		checked++
		if !t.Verify(r) {
			tampered = append(tampered, r.AuditID)
		}
		return true
	})
	return checked, tampered, err
}
