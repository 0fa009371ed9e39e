// Package store is the local record store for work items and comments.
//
// Records live in an embedded SQLite database (ncruces/go-sqlite3, WAL
// mode). The synchronizers never touch this package directly: the CLI loads
// full collections from the store, hands them to a sync pass and saves the
// returned deltas.
//
// Schema:
//   - items: one row per work item, tags as a JSON array
//   - comments: one row per comment, cascaded with its work item
//   - meta: key/value bookkeeping such as the last import watermark
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/mschirtzinger/worklog/internal/types"
)

var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrInvalidRecord is returned when a record fails validation on save.
	ErrInvalidRecord = errors.New("invalid record")
)

// Metadata keys.
const (
	MetaLastImport = "github.last_import_at"
)

// DefaultIDPrefix is used by GenerateID when no prefix is configured.
const DefaultIDPrefix = "WL"

// Store wraps the SQLite connection.
type Store struct {
	conn     *sql.DB
	path     string
	idPrefix string
	log      *slog.Logger
}

// Options configures Open.
type Options struct {
	// IDPrefix is prepended to generated ids. Defaults to DefaultIDPrefix.
	IDPrefix string

	Logger *slog.Logger
}

// Open opens or creates the database at path and initializes the schema.
// The caller must call Close.
func Open(path string, opts Options) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	conn, err := sql.Open("sqlite3", dsn(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	conn.SetMaxOpenConns(4)
	conn.SetMaxIdleConns(2)
	conn.SetConnMaxLifetime(5 * time.Minute)

	s := &Store{
		conn:     conn,
		path:     path,
		idPrefix: opts.IDPrefix,
		log:      opts.Logger,
	}
	if s.idPrefix == "" {
		s.idPrefix = DefaultIDPrefix
	}
	if s.log == nil {
		s.log = slog.New(slog.DiscardHandler)
	}

	if err := s.InitSchema(); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

// connPragmas are applied by the driver to every pooled connection.
var connPragmas = []string{
	"busy_timeout(5000)",
	"foreign_keys(1)",
	"journal_mode(wal)",
}

func dsn(path string) string {
	q := url.Values{"_pragma": connPragmas}
	return "file:" + filepath.ToSlash(path) + "?" + q.Encode()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// Close checkpoints the WAL and closes the connection.
func (s *Store) Close() error {
	if s.conn == nil {
		return nil
	}
	if _, err := s.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		s.log.Warn("failed to checkpoint WAL", "error", err)
	}
	if err := s.conn.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	s.conn = nil
	return nil
}

// InitSchema creates the schema if it does not exist. It is idempotent.
func (s *Store) InitSchema() error {
	return s.InitSchemaContext(context.Background())
}

// InitSchemaContext is InitSchema with context support.
func (s *Store) InitSchemaContext(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS items (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT 'open',
		priority TEXT NOT NULL DEFAULT '',
		stage TEXT NOT NULL DEFAULT '',
		issue_type TEXT NOT NULL DEFAULT '',
		risk TEXT NOT NULL DEFAULT '',
		effort TEXT NOT NULL DEFAULT '',
		tags TEXT,  -- JSON array
		assignee TEXT NOT NULL DEFAULT '',
		parent_id TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,

		-- remote linkage
		external_issue_number INTEGER NOT NULL DEFAULT 0,
		external_issue_id TEXT NOT NULL DEFAULT '',
		external_issue_updated_at TEXT
	);

	CREATE TABLE IF NOT EXISTS comments (
		id TEXT PRIMARY KEY,
		work_item_id TEXT NOT NULL,
		author TEXT NOT NULL DEFAULT '',
		body TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		refs TEXT,  -- JSON array
		external_comment_id INTEGER NOT NULL DEFAULT 0,
		external_comment_updated_at TEXT,
		FOREIGN KEY (work_item_id) REFERENCES items(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_items_status ON items(status);
	CREATE INDEX IF NOT EXISTS idx_items_issue ON items(external_issue_number);
	CREATE INDEX IF NOT EXISTS idx_comments_item ON comments(work_item_id, created_at);
	`
	if _, err := s.conn.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	return nil
}

// ===== Work items =====

const itemColumns = `id, title, description, status, priority, stage, issue_type,
	risk, effort, tags, assignee, parent_id, created_at, updated_at,
	external_issue_number, external_issue_id, external_issue_updated_at`

// GetItem returns the work item with id, or ErrNotFound.
func (s *Store) GetItem(ctx context.Context, id string) (*types.WorkItem, error) {
	row := s.conn.QueryRowContext(ctx, `SELECT `+itemColumns+` FROM items WHERE id = ?`, id)
	w, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: work item %s", ErrNotFound, id)
	}
	return w, err
}

// ListItems returns every work item ordered by creation time.
func (s *Store) ListItems(ctx context.Context) ([]*types.WorkItem, error) {
	rows, err := s.conn.QueryContext(ctx, `SELECT `+itemColumns+` FROM items ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list work items: %w", err)
	}
	defer rows.Close()

	var items []*types.WorkItem
	for rows.Next() {
		w, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating work items: %w", err)
	}
	return items, nil
}

// SaveItem inserts or replaces one work item.
func (s *Store) SaveItem(ctx context.Context, w *types.WorkItem) error {
	return s.SaveItems(ctx, []*types.WorkItem{w})
}

// SaveItems inserts or replaces work items in one transaction.
func (s *Store) SaveItems(ctx context.Context, items []*types.WorkItem) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		for _, w := range items {
			if err := saveItem(ctx, tx, w); err != nil {
				return err
			}
		}
		return nil
	})
}

func saveItem(ctx context.Context, tx *sql.Tx, w *types.WorkItem) error {
	if err := w.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidRecord, err)
	}
	tags, err := marshalList(types.SortedTags(w.Tags))
	if err != nil {
		return fmt.Errorf("failed to marshal tags: %w", err)
	}

	query := `
	INSERT INTO items (` + itemColumns + `)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		title = excluded.title,
		description = excluded.description,
		status = excluded.status,
		priority = excluded.priority,
		stage = excluded.stage,
		issue_type = excluded.issue_type,
		risk = excluded.risk,
		effort = excluded.effort,
		tags = excluded.tags,
		assignee = excluded.assignee,
		parent_id = excluded.parent_id,
		created_at = excluded.created_at,
		updated_at = excluded.updated_at,
		external_issue_number = excluded.external_issue_number,
		external_issue_id = excluded.external_issue_id,
		external_issue_updated_at = excluded.external_issue_updated_at
	`
	_, err = tx.ExecContext(ctx, query,
		w.ID,
		w.Title,
		w.Description,
		string(w.Status),
		string(w.Priority),
		w.Stage,
		w.IssueType,
		w.Risk,
		w.Effort,
		tags,
		w.Assignee,
		w.ParentID,
		formatTime(w.CreatedAt),
		formatTime(w.UpdatedAt),
		w.ExternalIssueNumber,
		w.ExternalIssueID,
		timeToNullString(w.ExternalIssueUpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to save work item %s: %w", w.ID, err)
	}
	return nil
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanItem(row scanner) (*types.WorkItem, error) {
	var w types.WorkItem
	var status, priority string
	var tags sql.NullString
	var createdAt, updatedAt string
	var issueUpdated sql.NullString

	err := row.Scan(
		&w.ID,
		&w.Title,
		&w.Description,
		&status,
		&priority,
		&w.Stage,
		&w.IssueType,
		&w.Risk,
		&w.Effort,
		&tags,
		&w.Assignee,
		&w.ParentID,
		&createdAt,
		&updatedAt,
		&w.ExternalIssueNumber,
		&w.ExternalIssueID,
		&issueUpdated,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan work item: %w", err)
	}

	w.Status = types.Status(status)
	w.Priority = types.Priority(priority)
	if w.Tags, err = unmarshalList(tags); err != nil {
		return nil, fmt.Errorf("failed to unmarshal tags of %s: %w", w.ID, err)
	}
	if w.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("bad created_at on %s: %w", w.ID, err)
	}
	if w.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("bad updated_at on %s: %w", w.ID, err)
	}
	w.ExternalIssueUpdatedAt = nullStringToTime(issueUpdated)
	return &w, nil
}

// ===== Comments =====

const commentColumns = `id, work_item_id, author, body, created_at, refs,
	external_comment_id, external_comment_updated_at`

// GetComment returns the comment with id, or ErrNotFound.
func (s *Store) GetComment(ctx context.Context, id string) (*types.Comment, error) {
	row := s.conn.QueryRowContext(ctx, `SELECT `+commentColumns+` FROM comments WHERE id = ?`, id)
	c, err := scanComment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: comment %s", ErrNotFound, id)
	}
	return c, err
}

// ListComments returns the comments of itemID ordered by creation time, or
// every comment when itemID is empty.
func (s *Store) ListComments(ctx context.Context, itemID string) ([]*types.Comment, error) {
	query := `SELECT ` + commentColumns + ` FROM comments`
	var args []any
	if itemID != "" {
		query += ` WHERE work_item_id = ?`
		args = append(args, itemID)
	}
	query += ` ORDER BY created_at, id`

	rows, err := s.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list comments: %w", err)
	}
	defer rows.Close()

	var comments []*types.Comment
	for rows.Next() {
		c, err := scanComment(rows)
		if err != nil {
			return nil, err
		}
		comments = append(comments, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating comments: %w", err)
	}
	return comments, nil
}

// SaveComment inserts or replaces one comment. Its work item must exist.
func (s *Store) SaveComment(ctx context.Context, c *types.Comment) error {
	return s.SaveComments(ctx, []*types.Comment{c})
}

// SaveComments inserts or replaces comments in one transaction.
func (s *Store) SaveComments(ctx context.Context, comments []*types.Comment) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		for _, c := range comments {
			if err := saveComment(ctx, tx, c); err != nil {
				return err
			}
		}
		return nil
	})
}

func saveComment(ctx context.Context, tx *sql.Tx, c *types.Comment) error {
	if err := c.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidRecord, err)
	}

	var exists int
	err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM items WHERE id = ?`, c.WorkItemID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check work item %s: %w", c.WorkItemID, err)
	}
	if exists == 0 {
		return fmt.Errorf("%w: work item %s of comment %s", ErrNotFound, c.WorkItemID, c.ID)
	}

	refs, err := marshalList(c.References)
	if err != nil {
		return fmt.Errorf("failed to marshal references: %w", err)
	}

	query := `
	INSERT INTO comments (` + commentColumns + `)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		work_item_id = excluded.work_item_id,
		author = excluded.author,
		body = excluded.body,
		created_at = excluded.created_at,
		refs = excluded.refs,
		external_comment_id = excluded.external_comment_id,
		external_comment_updated_at = excluded.external_comment_updated_at
	`
	_, err = tx.ExecContext(ctx, query,
		c.ID,
		c.WorkItemID,
		c.Author,
		c.Body,
		formatTime(c.CreatedAt),
		refs,
		c.ExternalCommentID,
		timeToNullString(c.ExternalCommentUpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to save comment %s: %w", c.ID, err)
	}
	return nil
}

func scanComment(row scanner) (*types.Comment, error) {
	var c types.Comment
	var refs sql.NullString
	var createdAt string
	var remoteUpdated sql.NullString

	err := row.Scan(
		&c.ID,
		&c.WorkItemID,
		&c.Author,
		&c.Body,
		&createdAt,
		&refs,
		&c.ExternalCommentID,
		&remoteUpdated,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan comment: %w", err)
	}

	if c.References, err = unmarshalList(refs); err != nil {
		return nil, fmt.Errorf("failed to unmarshal references of %s: %w", c.ID, err)
	}
	if c.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("bad created_at on comment %s: %w", c.ID, err)
	}
	c.ExternalCommentUpdatedAt = nullStringToTime(remoteUpdated)
	return &c, nil
}

// ===== Ids and metadata =====

// GenerateID returns an id that no stored work item uses yet, of the form
// "<prefix>-<8 hex digits>".
func (s *Store) GenerateID(ctx context.Context) (string, error) {
	for range 8 {
		id := s.idPrefix + "-" + strings.ReplaceAll(uuid.NewString(), "-", "")[:8]

		var n int
		if err := s.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM items WHERE id = ?`, id).Scan(&n); err != nil {
			return "", fmt.Errorf("failed to check id %s: %w", id, err)
		}
		if n == 0 {
			return id, nil
		}
		s.log.Debug("generated id collides, retrying", "id", id)
	}
	return "", errors.New("failed to generate a unique id")
}

// GetMeta returns the metadata value stored under key.
func (s *Store) GetMeta(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.conn.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read metadata %s: %w", key, err)
	}
	return value, true, nil
}

// SetMeta stores value under key.
func (s *Store) SetMeta(ctx context.Context, key, value string) error {
	_, err := s.conn.ExecContext(ctx,
		`INSERT INTO meta (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, value)
	if err != nil {
		return fmt.Errorf("failed to write metadata %s: %w", key, err)
	}
	return nil
}

// LastImport returns the recorded import watermark, or the zero time.
func (s *Store) LastImport(ctx context.Context) (time.Time, error) {
	v, ok, err := s.GetMeta(ctx, MetaLastImport)
	if err != nil || !ok {
		return time.Time{}, err
	}
	t, err := parseTime(v)
	if err != nil {
		return time.Time{}, fmt.Errorf("bad %s value %q: %w", MetaLastImport, v, err)
	}
	return t, nil
}

// SetLastImport records the import watermark.
func (s *Store) SetLastImport(ctx context.Context, t time.Time) error {
	return s.SetMeta(ctx, MetaLastImport, formatTime(t))
}

// ===== Helpers =====

func (s *Store) withTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// timeLayout is fixed width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}

// timeToNullString converts a time pointer to a nullable string for SQL.
func timeToNullString(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

// nullStringToTime converts a nullable SQL string to a time pointer.
func nullStringToTime(ns sql.NullString) *time.Time {
	if !ns.Valid {
		return nil
	}
	t, err := parseTime(ns.String)
	if err != nil {
		return nil
	}
	return &t
}

func marshalList(list []string) (sql.NullString, error) {
	if len(list) == 0 {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(list)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

func unmarshalList(ns sql.NullString) ([]string, error) {
	if !ns.Valid || ns.String == "" || ns.String == "null" {
		return nil, nil
	}
	var list []string
	if err := json.Unmarshal([]byte(ns.String), &list); err != nil {
		return nil, err
	}
	return list, nil
}
