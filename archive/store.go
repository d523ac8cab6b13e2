// Package archive provides local SQLite persistence: a history of classified
// documents and the request log fed by the HTTP middleware. History reads
// fall back here when ERPNext is not configured; ERPNext writes never do.
package archive

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// Store handles SQLite persistence. All methods are safe for concurrent use.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// Document is one archived classification.
type Document struct {
	ID            string    `json:"id"`
	Filename      string    `json:"filename"`
	DocumentClass string    `json:"document_class"`
	Confidence    float64   `json:"confidence"`
	CNNConfidence float64   `json:"cnn_confidence"`
	OCRBoost      float64   `json:"ocr_boost"`
	FusionApplied bool      `json:"fusion_applied"`
	Keywords      string    `json:"keywords"`
	Summary       string    `json:"summary"`
	OCRText       string    `json:"ocr_text"`
	UploadedBy    string    `json:"uploaded_by"`
	CreatedAt     time.Time `json:"created_at"`
}

// RequestLog is one HTTP request record.
type RequestLog struct {
	Timestamp  time.Time
	Method     string
	Endpoint   string
	ClientIP   string
	UserAgent  string
	StatusCode int
	Duration   time.Duration
}

// Stats aggregates the archived documents.
type Stats struct {
	Total         int            `json:"total"`
	ByClass       map[string]int `json:"by_class"`
	AvgConfidence float64        `json:"avg_confidence"`
}

// Open creates a Store at the given database path, creating tables as
// needed. ":memory:" opens an in-memory database for tests.
func Open(dbPath string) (*Store, error) {
	connStr := dbPath
	if dbPath == ":memory:" {
		// Shared cache so every pooled connection sees the same database.
		connStr = "file::memory:?cache=shared"
	}

	db, err := sql.Open("sqlite", connStr)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if dbPath != ":memory:" {
		if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
			db.Close()
			return nil, fmt.Errorf("enable WAL mode: %w", err)
		}
	}

	s := &Store{db: db}
	if err := s.createTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}
	return s, nil
}

func (s *Store) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS documents (
		id TEXT PRIMARY KEY,
		filename TEXT NOT NULL,
		document_class TEXT NOT NULL,
		confidence REAL NOT NULL,
		cnn_confidence REAL NOT NULL,
		ocr_boost REAL NOT NULL,
		fusion_applied INTEGER NOT NULL DEFAULT 0,
		keywords TEXT,
		summary TEXT,
		ocr_text TEXT,
		uploaded_by TEXT,
		created_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_documents_created ON documents(created_at DESC);
	CREATE INDEX IF NOT EXISTS idx_documents_class ON documents(document_class);

	CREATE TABLE IF NOT EXISTS request_logs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		timestamp DATETIME NOT NULL,
		method TEXT NOT NULL,
		endpoint TEXT NOT NULL,
		client_ip TEXT,
		user_agent TEXT,
		status_code INTEGER,
		duration_ms REAL
	);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("execute schema: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

// SaveDocument archives one classification.
func (s *Store) SaveDocument(doc Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = time.Now()
	}
	_, err := s.db.Exec(`
		INSERT INTO documents
		(id, filename, document_class, confidence, cnn_confidence, ocr_boost,
		 fusion_applied, keywords, summary, ocr_text, uploaded_by, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		doc.ID, doc.Filename, doc.DocumentClass, doc.Confidence, doc.CNNConfidence,
		doc.OCRBoost, doc.FusionApplied, doc.Keywords, doc.Summary, doc.OCRText,
		doc.UploadedBy, doc.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert document: %w", err)
	}
	return nil
}

// Documents returns the most recent archived documents.
func (s *Store) Documents(limit int) ([]Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(`
		SELECT id, filename, document_class, confidence, cnn_confidence, ocr_boost,
		       fusion_applied, keywords, summary, ocr_text, uploaded_by, created_at
		FROM documents ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query documents: %w", err)
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		var d Document
		if err := rows.Scan(&d.ID, &d.Filename, &d.DocumentClass, &d.Confidence,
			&d.CNNConfidence, &d.OCRBoost, &d.FusionApplied, &d.Keywords,
			&d.Summary, &d.OCRText, &d.UploadedBy, &d.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

// Statistics aggregates counts and average confidence per class.
func (s *Store) Statistics() (Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := Stats{ByClass: make(map[string]int)}
	rows, err := s.db.Query(`SELECT document_class, COUNT(*) FROM documents GROUP BY document_class`)
	if err != nil {
		return Stats{}, fmt.Errorf("query class counts: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var class string
		var n int
		if err := rows.Scan(&class, &n); err != nil {
			return Stats{}, fmt.Errorf("scan class count: %w", err)
		}
		stats.ByClass[class] = n
		stats.Total += n
	}
	if err := rows.Err(); err != nil {
		return Stats{}, err
	}

	if stats.Total > 0 {
		var avg sql.NullFloat64
		if err := s.db.QueryRow(`SELECT AVG(confidence) FROM documents`).Scan(&avg); err != nil {
			return Stats{}, fmt.Errorf("query avg confidence: %w", err)
		}
		stats.AvgConfidence = avg.Float64
	}
	return stats, nil
}

// LogRequest appends one entry to the request log.
func (s *Store) LogRequest(entry RequestLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}
	_, err := s.db.Exec(`
		INSERT INTO request_logs (timestamp, method, endpoint, client_ip, user_agent, status_code, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		entry.Timestamp, entry.Method, entry.Endpoint, entry.ClientIP,
		entry.UserAgent, entry.StatusCode, float64(entry.Duration.Microseconds())/1000)
	if err != nil {
		return fmt.Errorf("insert request log: %w", err)
	}
	return nil
}

// RequestCount returns the number of logged requests.
func (s *Store) RequestCount() (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM request_logs`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count request logs: %w", err)
	}
	return n, nil
}
