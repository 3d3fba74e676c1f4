package backend

import (
	"time"

	log "github.com/sirupsen/logrus"
)

// janitorLoop periodically expires old articles. Spool entries are never
// expired here; lingering spool rows are the operator's call.
func (b *Backend) janitorLoop() {
	defer b.wg.Done()

	ticker := time.NewTicker(b.cfg.Janitor.Sleep)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			count, err := b.ExpireArticles()
			if err != nil {
				log.Printf("Janitor run failed: %v", err)
			} else if count > 0 {
				log.Printf("Janitor expired %d articles", count)
			}
		case <-b.ctx.Done():
			return
		}
	}
}

// ExpireArticles deletes articles older than the configured retention window
// and returns the count. Expiry 0 disables the sweep.
func (b *Backend) ExpireArticles() (int64, error) {
	if b.cfg.Usenet.ExpiryTime <= 0 {
		return 0, nil
	}
	cutoff := time.Now().UTC().Add(-time.Duration(b.cfg.Usenet.ExpiryTime) * time.Millisecond)
	return b.db.DeleteArticlesBefore(cutoff)
}
