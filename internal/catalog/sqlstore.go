package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"
)

const schema = `
CREATE TABLE IF NOT EXISTS book (
	id          INTEGER PRIMARY KEY,
	title       TEXT NOT NULL DEFAULT '',
	language    TEXT NOT NULL DEFAULT '',
	cover_page  INTEGER NOT NULL DEFAULT 0,
	html_etag   TEXT NOT NULL DEFAULT '',
	epub_etag   TEXT NOT NULL DEFAULT '',
	cover_etag  TEXT NOT NULL DEFAULT ''
);
CREATE TABLE IF NOT EXISTS format (
	id       INTEGER PRIMARY KEY AUTOINCREMENT,
	mime     TEXT NOT NULL,
	images   INTEGER NOT NULL DEFAULT 0,
	pattern  TEXT NOT NULL DEFAULT '',
	UNIQUE (mime, images, pattern)
);
CREATE TABLE IF NOT EXISTS bookformat (
	id               INTEGER PRIMARY KEY AUTOINCREMENT,
	book_id          INTEGER NOT NULL,
	format_id        INTEGER NOT NULL,
	downloaded_from  TEXT NOT NULL DEFAULT '',
	UNIQUE (book_id, format_id)
);
CREATE INDEX IF NOT EXISTS bookformat_book ON bookformat (book_id);
`

// SQLStore is a Store backed by a SQLite file.
// Each write is a single IMMEDIATE transaction touching one row.
type SQLStore struct {
	pool   *sqlitex.Pool
	logger *slog.Logger
	path   string
}

// OpenSQLStore opens (creating if needed) the catalog database at path.
// A nil logger discards pool messages.
func OpenSQLStore(path string, poolSize int, logger *slog.Logger) (*SQLStore, error) {
	if path == "" {
		return nil, fmt.Errorf("catalog: path is required")
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if poolSize <= 0 {
		poolSize = 4
	}

	pool, err := sqlitex.NewPool(path, sqlitex.PoolOptions{
		PoolSize:    poolSize,
		PrepareConn: prepareConnection,
	})
	if err != nil {
		return nil, fmt.Errorf("catalog: opening %s: %w", path, err)
	}

	store := &SQLStore{pool: pool, logger: logger, path: path}
	if err := store.migrate(); err != nil {
		pool.Close()
		return nil, err
	}

	logger.Info("catalog opened", "path", path, "pool_size", poolSize)
	return store, nil
}

func prepareConnection(conn *sqlite.Conn) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA temp_store=MEMORY",
	}
	for _, pragma := range pragmas {
		if err := sqlitex.ExecuteTransient(conn, pragma, nil); err != nil {
			return fmt.Errorf("catalog: %s: %w", pragma, err)
		}
	}
	return nil
}

func (s *SQLStore) migrate() error {
	conn, err := s.pool.Take(context.Background())
	if err != nil {
		return fmt.Errorf("catalog: take: %w", err)
	}
	defer s.pool.Put(conn)

	if err := sqlitex.ExecuteScript(conn, schema, nil); err != nil {
		return fmt.Errorf("catalog: creating schema: %w", err)
	}
	return nil
}

// Close closes the connection pool.
func (s *SQLStore) Close() error {
	if err := s.pool.Close(); err != nil {
		return fmt.Errorf("catalog: closing %s: %w", s.path, err)
	}
	return nil
}

// PutBook inserts or replaces the identity fields of a book, keeping its etags.
func (s *SQLStore) PutBook(ctx context.Context, book Book) (err error) {
	conn, err := s.take(ctx)
	if err != nil {
		return err
	}
	defer s.pool.Put(conn)

	endTransaction, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return writeError(err)
	}
	defer endTransaction(&err)

	err = sqlitex.Execute(conn, `
		INSERT INTO book (id, title, language, cover_page, html_etag, epub_etag, cover_etag)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			title = excluded.title,
			language = excluded.language,
			cover_page = excluded.cover_page`,
		&sqlitex.ExecOptions{
			Args: []any{book.ID, book.Title, book.Language, book.HasCover, book.HTMLEtag, book.EpubEtag, book.CoverEtag},
		})
	if err != nil {
		return writeError(err)
	}
	return nil
}

// AddFormat attaches a format to a book, creating the format row when
// needed, and returns the record id. Adding the same pair twice returns
// the existing record.
func (s *SQLStore) AddFormat(ctx context.Context, bookID int, format Format) (id int64, err error) {
	conn, err := s.take(ctx)
	if err != nil {
		return 0, err
	}
	defer s.pool.Put(conn)

	endTransaction, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return 0, writeError(err)
	}
	defer endTransaction(&err)

	err = sqlitex.Execute(conn,
		`INSERT INTO format (mime, images, pattern) VALUES (?, ?, ?) ON CONFLICT DO NOTHING`,
		&sqlitex.ExecOptions{Args: []any{format.Mime, format.Images, format.Pattern}})
	if err != nil {
		return 0, writeError(err)
	}
	err = sqlitex.Execute(conn, `
		INSERT INTO bookformat (book_id, format_id)
		SELECT ?, id FROM format WHERE mime = ? AND images = ? AND pattern = ?
		ON CONFLICT DO NOTHING`,
		&sqlitex.ExecOptions{Args: []any{bookID, format.Mime, format.Images, format.Pattern}})
	if err != nil {
		return 0, writeError(err)
	}
	err = sqlitex.Execute(conn, `
		SELECT bf.id FROM bookformat bf JOIN format f ON f.id = bf.format_id
		WHERE bf.book_id = ? AND f.mime = ? AND f.images = ? AND f.pattern = ?`,
		&sqlitex.ExecOptions{
			Args: []any{bookID, format.Mime, format.Images, format.Pattern},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				id = stmt.ColumnInt64(0)
				return nil
			},
		})
	if err != nil {
		return 0, writeError(err)
	}
	return id, nil
}

func (s *SQLStore) Books(ctx context.Context, filter Filter) ([]Book, error) {
	conn, err := s.take(ctx)
	if err != nil {
		return nil, err
	}
	defer s.pool.Put(conn)

	var (
		clauses []string
		args    []any
	)
	if len(filter.Languages) > 0 {
		clauses = append(clauses, "language IN ("+placeholders(len(filter.Languages))+")")
		for _, l := range filter.Languages {
			args = append(args, l)
		}
	}
	if len(filter.OnlyBooks) > 0 {
		clauses = append(clauses, "id IN ("+placeholders(len(filter.OnlyBooks))+")")
		for _, id := range filter.OnlyBooks {
			args = append(args, id)
		}
	}
	if len(filter.Mimes) > 0 {
		clauses = append(clauses, `EXISTS (
			SELECT 1 FROM bookformat bf JOIN format f ON f.id = bf.format_id
			WHERE bf.book_id = book.id AND f.mime IN (`+placeholders(len(filter.Mimes))+`))`)
		for _, m := range filter.Mimes {
			args = append(args, m)
		}
	}

	query := `SELECT id, title, language, cover_page, html_etag, epub_etag, cover_etag FROM book`
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY id"

	var books []Book
	err = sqlitex.Execute(conn, query, &sqlitex.ExecOptions{
		Args: args,
		ResultFunc: func(stmt *sqlite.Stmt) error {
			books = append(books, scanBook(stmt))
			return nil
		},
	})
	if err != nil {
		return nil, queryError(err)
	}
	return books, nil
}

func (s *SQLStore) Book(ctx context.Context, id int) (Book, error) {
	conn, err := s.take(ctx)
	if err != nil {
		return Book{}, err
	}
	defer s.pool.Put(conn)

	var (
		book  Book
		found bool
	)
	err = sqlitex.Execute(conn,
		`SELECT id, title, language, cover_page, html_etag, epub_etag, cover_etag FROM book WHERE id = ?`,
		&sqlitex.ExecOptions{
			Args: []any{id},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				book = scanBook(stmt)
				found = true
				return nil
			},
		})
	if err != nil {
		return Book{}, queryError(err)
	}
	if !found {
		return Book{}, &CatalogError{Message: fmt.Sprintf("book %d", id), Cause: ErrCauseNotFound}
	}
	return book, nil
}

func (s *SQLStore) FormatRecords(ctx context.Context, bookID int) ([]FormatRecord, error) {
	conn, err := s.take(ctx)
	if err != nil {
		return nil, err
	}
	defer s.pool.Put(conn)

	var records []FormatRecord
	err = sqlitex.Execute(conn, `
		SELECT bf.id, bf.book_id, f.mime, f.images, f.pattern, bf.downloaded_from
		FROM bookformat bf JOIN format f ON f.id = bf.format_id
		WHERE bf.book_id = ?
		ORDER BY bf.id`,
		&sqlitex.ExecOptions{
			Args: []any{bookID},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				records = append(records, FormatRecord{
					ID:     stmt.ColumnInt64(0),
					BookID: stmt.ColumnInt(1),
					Format: Format{
						Mime:    stmt.ColumnText(2),
						Images:  stmt.ColumnBool(3),
						Pattern: stmt.ColumnText(4),
					},
					SourceURL: stmt.ColumnText(5),
				})
				return nil
			},
		})
	if err != nil {
		return nil, queryError(err)
	}
	return records, nil
}

func (s *SQLStore) SetSourceURL(ctx context.Context, recordID int64, sourceURL string) error {
	return s.updateOne(ctx,
		`UPDATE bookformat SET downloaded_from = ? WHERE id = ?`,
		[]any{sourceURL, recordID},
		fmt.Sprintf("format record %d", recordID))
}

func (s *SQLStore) SetEtag(ctx context.Context, bookID int, field EtagField, etag string) error {
	switch field {
	case EtagHTML, EtagEPUB, EtagCover:
	default:
		return &CatalogError{Message: fmt.Sprintf("unknown etag field %q", field), Cause: ErrCauseWriteFailure}
	}
	// field is one of the constants above, never user input
	return s.updateOne(ctx,
		fmt.Sprintf(`UPDATE book SET %s = ? WHERE id = ?`, field),
		[]any{etag, bookID},
		fmt.Sprintf("book %d", bookID))
}

func (s *SQLStore) updateOne(ctx context.Context, query string, args []any, subject string) (err error) {
	conn, err := s.take(ctx)
	if err != nil {
		return err
	}
	defer s.pool.Put(conn)

	endTransaction, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return writeError(err)
	}
	defer endTransaction(&err)

	if err = sqlitex.Execute(conn, query, &sqlitex.ExecOptions{Args: args}); err != nil {
		return writeError(err)
	}
	if conn.Changes() == 0 {
		err = &CatalogError{Message: subject, Cause: ErrCauseNotFound}
		return err
	}
	return nil
}

func (s *SQLStore) take(ctx context.Context) (*sqlite.Conn, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, &CatalogError{Message: err.Error(), Retryable: true, Cause: ErrCauseQueryFailure}
	}
	return conn, nil
}

func scanBook(stmt *sqlite.Stmt) Book {
	return Book{
		ID:        stmt.ColumnInt(0),
		Title:     stmt.ColumnText(1),
		Language:  stmt.ColumnText(2),
		HasCover:  stmt.ColumnBool(3),
		HTMLEtag:  stmt.ColumnText(4),
		EpubEtag:  stmt.ColumnText(5),
		CoverEtag: stmt.ColumnText(6),
	}
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func queryError(err error) *CatalogError {
	return &CatalogError{Message: err.Error(), Retryable: true, Cause: ErrCauseQueryFailure}
}

func writeError(err error) *CatalogError {
	return &CatalogError{Message: err.Error(), Retryable: false, Cause: ErrCauseWriteFailure}
}
