package backend

import (
	"sort"

	log "github.com/sirupsen/logrus"

	"github.com/go-dtn/dtnntp/internal/dtn"
	"github.com/go-dtn/dtnntp/internal/models"
)

// Ingest pulls the daemon's stored bundles for every carried group,
// deduplicates against the store's message ids and commits all new articles
// in a single transaction. Individual bundle failures are logged and skipped
// (they are retried on the next cycle); a failed transaction abandons the
// whole batch. Running Ingest twice over the same bundle set inserts
// nothing the second time.
func (b *Backend) Ingest() error {
	control := b.currentControl()
	if control == nil {
		return dtn.ErrNotConnected
	}

	known, err := b.db.ListMessageIDs()
	if err != nil {
		return err
	}

	bundleIDs := make(map[string]struct{})
	for name := range b.groups {
		ids, err := control.ListBundles(name)
		if err != nil {
			if dtn.IsTemporary(err) {
				return err
			}
			log.Printf("Listing bundles for %s failed: %v", name, err)
			continue
		}
		for _, id := range ids {
			bundleIDs[id] = struct{}{}
		}
	}

	// deterministic download order keeps the logs readable
	ordered := make([]string, 0, len(bundleIDs))
	for id := range bundleIDs {
		ordered = append(ordered, id)
	}
	sort.Strings(ordered)

	var batch []*models.Article
	for _, bid := range ordered {
		messageID := dtn.MessageIDFromBundleID(bid)
		if _, ok := known[messageID]; ok {
			continue
		}

		bundle, err := control.Download(bid)
		if err != nil {
			log.Printf("Downloading bundle %s failed, will retry next cycle: %v", bid, err)
			continue
		}
		if got := bundle.ID(); got != bid {
			log.Printf("Bundle id mismatch from DTNd: requested %s, decoded %s, skipping", bid, got)
			continue
		}

		article, err := b.articleFromBundle(bundle, messageID)
		if err != nil {
			log.Printf("Skipping bundle %s: %v", bid, err)
			continue
		}
		if article == nil {
			// destination group not carried here
			continue
		}

		known[messageID] = struct{}{}
		batch = append(batch, article)
	}

	if len(batch) == 0 {
		return nil
	}
	if err := b.db.InsertArticles(batch); err != nil {
		log.Printf("Ingestion transaction failed, batch of %d abandoned: %v", len(batch), err)
		return err
	}
	log.Printf("Ingested %d articles from DTNd", len(batch))
	return nil
}

// articleFromBundle reconstructs the NNTP headers that do not travel on the
// wire from the bundle's BP7 metadata. Returns (nil, nil) for bundles
// addressed to groups not configured locally.
func (b *Backend) articleFromBundle(bundle *dtn.Bundle, messageID string) (*models.Article, error) {
	groupName := dtn.GroupFromDestination(bundle.Destination)
	group, ok := b.groups[groupName]
	if !ok {
		return nil, nil
	}

	from, err := dtn.EmailFromURI(bundle.Source)
	if err != nil {
		return nil, err
	}

	payload, err := dtn.DecodePayload(bundle.Payload)
	if err != nil {
		return nil, err
	}

	return &models.Article{
		NewsgroupID: group.ID,
		Newsgroup:   group.Name,
		FromHeader:  from,
		Subject:     payload.Subject,
		Body:        payload.Body,
		MessageID:   messageID,
		References:  payload.References,
		ReplyTo:     payload.ReplyTo,
		CreatedAt:   dtn.FromDTNTime(bundle.Timestamp),
		Path:        "!" + b.cfg.NNTP.Hostname,
	}, nil
}
