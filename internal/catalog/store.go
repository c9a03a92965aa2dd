package catalog

import "context"

/*
Store
Port to the book catalog.
Responsibilities:
- Select the books of a run
- List the format records of one book
- Persist provenance: a record's source URL and a book's validators

Implementations must make each write an atomic upsert of one record.
The downloader never assumes a transaction spanning several books.
*/
type Store interface {
	Books(ctx context.Context, filter Filter) ([]Book, error)
	Book(ctx context.Context, id int) (Book, error)
	FormatRecords(ctx context.Context, bookID int) ([]FormatRecord, error)
	SetSourceURL(ctx context.Context, recordID int64, sourceURL string) error
	SetEtag(ctx context.Context, bookID int, field EtagField, etag string) error
}
