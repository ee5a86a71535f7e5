package audit

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/hyperpolymath/verified-container-spec/pkg/ctperrors"
)

// sqliteRecorder is an alternate Recorder backing the audit log with a
// SQLite table instead of a flat file — useful when an operator wants
// queryable history without standing up an external database.
type sqliteRecorder struct {
	db *sql.DB
}

// NewSQLiteRecorder opens (creating if absent) a SQLite database at path
// and ensures the audit_records table exists.
func NewSQLiteRecorder(path string) (Recorder, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, ctperrors.Wrap(ctperrors.KindMalformedBundle, "opening sqlite audit database", err)
	}

	const schema = `
CREATE TABLE IF NOT EXISTS audit_records (
	id TEXT PRIMARY KEY,
	timestamp TEXT NOT NULL,
	bundle_name TEXT NOT NULL,
	image_digest TEXT NOT NULL,
	outcome TEXT NOT NULL,
	error_kind TEXT
)`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, ctperrors.Wrap(ctperrors.KindMalformedBundle, "creating audit_records table", err)
	}
	return &sqliteRecorder{db: db}, nil
}

func (r *sqliteRecorder) Record(bundleName, imageDigest string, outcome Outcome, errorKind string) error {
	const insert = `INSERT INTO audit_records (id, timestamp, bundle_name, image_digest, outcome, error_kind)
VALUES (?, ?, ?, ?, ?, ?)`

	_, err := r.db.Exec(insert,
		uuid.New().String(),
		time.Now().UTC().Format(time.RFC3339),
		bundleName,
		imageDigest,
		string(outcome),
		errorKind,
	)
	if err != nil {
		return ctperrors.Wrap(ctperrors.KindMalformedBundle, "inserting audit record", err)
	}
	return nil
}

// Close releases the underlying database handle.
func (r *sqliteRecorder) Close() error {
	return r.db.Close()
}
