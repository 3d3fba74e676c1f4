package database

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-dtn/dtnntp/internal/models"
)

// GetNewsgroups returns all newsgroups ordered by name.
func (d *Database) GetNewsgroups() ([]*models.Newsgroup, error) {
	rows, err := retryableQuery(d.db, `SELECT id, name, description, created_at FROM newsgroups ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to query newsgroups: %w", err)
	}
	defer rows.Close()

	var groups []*models.Newsgroup
	for rows.Next() {
		g := &models.Newsgroup{}
		if err := rows.Scan(&g.ID, &g.Name, &g.Description, &g.CreatedAt); err != nil {
			return nil, err
		}
		groups = append(groups, g)
	}
	return groups, rows.Err()
}

// GetNewsgroupByName looks up a single newsgroup. Returns ErrNotFound when
// the group does not exist.
func (d *Database) GetNewsgroupByName(name string) (*models.Newsgroup, error) {
	g := &models.Newsgroup{}
	err := retryableQueryRowScan(d.db,
		`SELECT id, name, description, created_at FROM newsgroups WHERE name = ?`,
		[]interface{}{name}, &g.ID, &g.Name, &g.Description, &g.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return g, nil
}

// InsertNewsgroup creates a newsgroup. Inserting an existing name returns
// ErrDuplicate.
func (d *Database) InsertNewsgroup(name, description string) (*models.Newsgroup, error) {
	now := time.Now().UTC()
	res, err := retryableExec(d.db,
		`INSERT INTO newsgroups (name, description, created_at) VALUES (?, ?, ?)`,
		name, description, now)
	if isUniqueViolation(err) {
		return nil, ErrDuplicate
	}
	if err != nil {
		return nil, fmt.Errorf("failed to insert newsgroup %s: %w", name, err)
	}
	id, _ := res.LastInsertId()
	return &models.Newsgroup{ID: id, Name: name, Description: description, CreatedAt: now}, nil
}

// DeleteNewsgroup removes a group; the articles cascade is enforced by the
// schema. Deleting an absent group is a no-op.
func (d *Database) DeleteNewsgroup(name string) error {
	_, err := retryableExec(d.db, `DELETE FROM newsgroups WHERE name = ?`, name)
	return err
}

// GroupStats returns article count and low/high water marks for one group.
// An existing but empty group yields zero counts, not an error.
func (d *Database) GroupStats(name string) (*models.GroupStats, error) {
	if _, err := d.GetNewsgroupByName(name); err != nil {
		return nil, err
	}
	st := &models.GroupStats{Name: name}
	err := retryableQueryRowScan(d.db,
		`SELECT COUNT(a.id), COALESCE(MIN(a.id), 0), COALESCE(MAX(a.id), 0)
		 FROM articles a JOIN newsgroups n ON a.newsgroup_id = n.id
		 WHERE n.name = ?`,
		[]interface{}{name}, &st.Count, &st.Low, &st.High)
	if err != nil {
		return nil, err
	}
	return st, nil
}

// AllGroupStats returns stats for every group ordered by name, including
// empty groups.
func (d *Database) AllGroupStats() ([]*models.GroupStats, error) {
	rows, err := retryableQuery(d.db,
		`SELECT n.name, COUNT(a.id), COALESCE(MIN(a.id), 0), COALESCE(MAX(a.id), 0)
		 FROM newsgroups n LEFT JOIN articles a ON a.newsgroup_id = n.id
		 GROUP BY n.id ORDER BY n.name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stats []*models.GroupStats
	for rows.Next() {
		st := &models.GroupStats{}
		if err := rows.Scan(&st.Name, &st.Count, &st.Low, &st.High); err != nil {
			return nil, err
		}
		stats = append(stats, st)
	}
	return stats, rows.Err()
}

// GroupsCreatedSince returns groups created at or after the given time,
// ordered by name. Used by NEWGROUPS.
func (d *Database) GroupsCreatedSince(since time.Time) ([]*models.Newsgroup, error) {
	rows, err := retryableQuery(d.db,
		`SELECT id, name, description, created_at FROM newsgroups WHERE created_at >= ? ORDER BY name`,
		since.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var groups []*models.Newsgroup
	for rows.Next() {
		g := &models.Newsgroup{}
		if err := rows.Scan(&g.ID, &g.Name, &g.Description, &g.CreatedAt); err != nil {
			return nil, err
		}
		groups = append(groups, g)
	}
	return groups, rows.Err()
}
