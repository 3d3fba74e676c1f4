package database

import (
	"fmt"
	"time"

	"github.com/go-dtn/dtnntp/internal/models"
)

// InsertSpoolEntry writes an outbound spool entry in its own transaction and
// fills in the assigned id.
func (d *Database) InsertSpoolEntry(e *models.SpoolEntry) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	res, err := retryableExec(d.db,
		`INSERT INTO spool (source, destination, data, delivery_notification, lifetime, hash,
			retries, error_log, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.Source, e.Destination, e.Data, e.DeliveryNotification, e.Lifetime, e.Hash,
		e.Retries, e.ErrorLog, e.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to insert spool entry %s: %w", e.Hash, err)
	}
	e.ID, _ = res.LastInsertId()
	return nil
}

// GetSpoolEntries returns every spool entry in insertion order. The drain
// procedure relies on that order.
func (d *Database) GetSpoolEntries() ([]*models.SpoolEntry, error) {
	rows, err := retryableQuery(d.db,
		`SELECT id, source, destination, data, delivery_notification, lifetime, hash,
			retries, error_log, created_at
		 FROM spool ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*models.SpoolEntry
	for rows.Next() {
		e := &models.SpoolEntry{}
		if err := rows.Scan(&e.ID, &e.Source, &e.Destination, &e.Data, &e.DeliveryNotification,
			&e.Lifetime, &e.Hash, &e.Retries, &e.ErrorLog, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// AppendSpoolError appends a line to the error log of every spool entry with
// the given hash and bumps its retry counter.
func (d *Database) AppendSpoolError(hash, line string) error {
	_, err := retryableExec(d.db,
		`UPDATE spool SET error_log = error_log || ?, retries = retries + 1 WHERE hash = ?`,
		line, hash)
	return err
}

// DeleteSpoolByHash removes all spool entries matching the hash and returns
// the count. 0 means the acknowledged article originated remotely; 1 is the
// normal outbound path; anything else is an integrity warning for the caller
// to log.
func (d *Database) DeleteSpoolByHash(hash string) (int64, error) {
	res, err := retryableExec(d.db, `DELETE FROM spool WHERE hash = ?`, hash)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// CountSpool returns the number of pending spool entries.
func (d *Database) CountSpool() (int64, error) {
	var n int64
	err := retryableQueryRowScan(d.db, `SELECT COUNT(*) FROM spool`, nil, &n)
	return n, err
}
