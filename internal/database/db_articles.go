package database

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-dtn/dtnntp/internal/models"
)

const articleColumns = `a.id, a.newsgroup_id, a.from_header, a.subject, a.body, a.message_id,
	a.refs, a.created_at, a.path, a.reply_to, a.organization, a.user_agent, n.name`

func scanArticle(scanner interface{ Scan(...interface{}) error }) (*models.Article, error) {
	a := &models.Article{}
	err := scanner.Scan(&a.ID, &a.NewsgroupID, &a.FromHeader, &a.Subject, &a.Body, &a.MessageID,
		&a.References, &a.CreatedAt, &a.Path, &a.ReplyTo, &a.Organization, &a.UserAgent, &a.Newsgroup)
	if err != nil {
		return nil, err
	}
	return a, nil
}

func insertArticleTx(tx *sql.Tx, a *models.Article) (int64, error) {
	res, err := tx.Exec(
		`INSERT INTO articles (newsgroup_id, from_header, subject, body, message_id, refs,
			created_at, path, reply_to, organization, user_agent)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.NewsgroupID, a.FromHeader, a.Subject, a.Body, a.MessageID, a.References,
		a.CreatedAt.UTC(), a.Path, a.ReplyTo, a.Organization, a.UserAgent)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// InsertArticle commits a single article. A second article with the same
// message-id returns ErrDuplicate; callers treat that as the dedup path.
func (d *Database) InsertArticle(a *models.Article) (int64, error) {
	var id int64
	err := retryableTransactionExec(d.db, func(tx *sql.Tx) error {
		var err error
		id, err = insertArticleTx(tx, a)
		return err
	})
	if isUniqueViolation(err) {
		return 0, ErrDuplicate
	}
	if err != nil {
		return 0, fmt.Errorf("failed to insert article %s: %w", a.MessageID, err)
	}
	a.ID = id
	return id, nil
}

// InsertArticles commits a batch of articles in one transaction. Either the
// whole batch commits or none of it does.
func (d *Database) InsertArticles(batch []*models.Article) error {
	if len(batch) == 0 {
		return nil
	}
	return retryableTransactionExec(d.db, func(tx *sql.Tx) error {
		for _, a := range batch {
			id, err := insertArticleTx(tx, a)
			if err != nil {
				return err
			}
			a.ID = id
		}
		return nil
	})
}

// GetArticleByNum fetches the article with the given number in a group.
func (d *Database) GetArticleByNum(group string, num int64) (*models.Article, error) {
	row := d.db.QueryRow(
		`SELECT `+articleColumns+` FROM articles a JOIN newsgroups n ON a.newsgroup_id = n.id
		 WHERE n.name = ? AND a.id = ?`, group, num)
	a, err := scanArticle(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return a, err
}

// GetArticleByMessageID fetches an article by its globally unique message-id.
func (d *Database) GetArticleByMessageID(messageID string) (*models.Article, error) {
	row := d.db.QueryRow(
		`SELECT `+articleColumns+` FROM articles a JOIN newsgroups n ON a.newsgroup_id = n.id
		 WHERE a.message_id = ?`, messageID)
	a, err := scanArticle(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return a, err
}

// GetArticlesInRange returns the articles of a group with start <= id <= stop
// in ascending order.
func (d *Database) GetArticlesInRange(group string, start, stop int64) ([]*models.Article, error) {
	rows, err := retryableQuery(d.db,
		`SELECT `+articleColumns+` FROM articles a JOIN newsgroups n ON a.newsgroup_id = n.id
		 WHERE n.name = ? AND a.id >= ? AND a.id <= ? ORDER BY a.id`, group, start, stop)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectArticles(rows)
}

// FirstArticle returns the lowest-numbered article of a group, or ErrNotFound
// for an empty group.
func (d *Database) FirstArticle(group string) (*models.Article, error) {
	row := d.db.QueryRow(
		`SELECT `+articleColumns+` FROM articles a JOIN newsgroups n ON a.newsgroup_id = n.id
		 WHERE n.name = ? ORDER BY a.id LIMIT 1`, group)
	a, err := scanArticle(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return a, err
}

// NextArticle returns the article following num in a group, ErrNotFound when
// num is already the last one.
func (d *Database) NextArticle(group string, num int64) (*models.Article, error) {
	row := d.db.QueryRow(
		`SELECT `+articleColumns+` FROM articles a JOIN newsgroups n ON a.newsgroup_id = n.id
		 WHERE n.name = ? AND a.id > ? ORDER BY a.id LIMIT 1`, group, num)
	a, err := scanArticle(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return a, err
}

// PrevArticle returns the article preceding num in a group, ErrNotFound when
// num is already the first one.
func (d *Database) PrevArticle(group string, num int64) (*models.Article, error) {
	row := d.db.QueryRow(
		`SELECT `+articleColumns+` FROM articles a JOIN newsgroups n ON a.newsgroup_id = n.id
		 WHERE n.name = ? AND a.id < ? ORDER BY a.id DESC LIMIT 1`, group, num)
	a, err := scanArticle(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return a, err
}

// ListMessageIDs returns the set of every known message-id. Used by the
// ingestion engine to dedup remote bundles.
func (d *Database) ListMessageIDs() (map[string]struct{}, error) {
	rows, err := retryableQuery(d.db, `SELECT message_id FROM articles`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	known := make(map[string]struct{})
	for rows.Next() {
		var mid string
		if err := rows.Scan(&mid); err != nil {
			return nil, err
		}
		known[mid] = struct{}{}
	}
	return known, rows.Err()
}

// RecentArticles returns the most recently created articles across all
// groups, newest first.
func (d *Database) RecentArticles(limit int) ([]*models.Article, error) {
	rows, err := retryableQuery(d.db,
		`SELECT `+articleColumns+` FROM articles a JOIN newsgroups n ON a.newsgroup_id = n.id
		 ORDER BY a.created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectArticles(rows)
}

// ArticlesSince returns every article created at or after the given time,
// ordered by id. Used by NEWNEWS; the wildmat group filter is applied by the
// caller.
func (d *Database) ArticlesSince(since time.Time) ([]*models.Article, error) {
	rows, err := retryableQuery(d.db,
		`SELECT `+articleColumns+` FROM articles a JOIN newsgroups n ON a.newsgroup_id = n.id
		 WHERE a.created_at >= ? ORDER BY a.id`, since.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectArticles(rows)
}

// CountArticles returns the total number of committed articles.
func (d *Database) CountArticles() (int64, error) {
	var n int64
	err := retryableQueryRowScan(d.db, `SELECT COUNT(*) FROM articles`, nil, &n)
	return n, err
}

// DeleteArticlesBefore removes articles older than the cutoff and returns
// how many were deleted. The spool is never touched here.
func (d *Database) DeleteArticlesBefore(cutoff time.Time) (int64, error) {
	res, err := retryableExec(d.db, `DELETE FROM articles WHERE created_at < ?`, cutoff.UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func collectArticles(rows *sql.Rows) ([]*models.Article, error) {
	var articles []*models.Article
	for rows.Next() {
		a, err := scanArticle(rows)
		if err != nil {
			return nil, err
		}
		articles = append(articles, a)
	}
	return articles, rows.Err()
}
