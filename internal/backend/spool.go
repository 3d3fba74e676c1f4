package backend

import (
	"context"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/go-dtn/dtnntp/internal/dtn"
	"github.com/go-dtn/dtnntp/internal/models"
)

// Post accepts a raw NNTP article buffer (header lines, empty separator,
// body lines; dot-unstuffed by the session), writes a spool entry in its own
// transaction and hands the bundle to the stream. A send failure is not
// fatal: it is appended to the entry's error log and the entry stays spooled
// for the next drain.
//
// The sender identity always comes from the configuration, never from the
// From: header, so clients cannot spoof other identities.
func (b *Backend) Post(lines []string) error {
	header, body := parseArticle(lines)

	groupName := header["newsgroups"]
	group, ok := b.groups[groupName]
	if !ok {
		return fmt.Errorf("newsgroup '%s' is not carried here", groupName)
	}

	body = decodeCharset(body, header["content-type"])
	references := strings.ReplaceAll(header["references"], "\t", "")

	source, err := dtn.SenderURI(b.NodeID(), b.cfg.Usenet.Email)
	if err != nil {
		return fmt.Errorf("cannot build sender endpoint: %w", err)
	}
	destination := dtn.GroupEndpoint(group.Name)

	payload := &dtn.Payload{
		Subject:    header["subject"],
		Body:       body,
		References: references,
		ReplyTo:    header["reply-to"],
	}
	data, err := dtn.EncodePayload(payload, b.cfg.Bundles.CompressBody)
	if err != nil {
		return fmt.Errorf("failed to encode payload: %w", err)
	}

	// hash over the decompressed body so post and acknowledgement agree
	hash := dtn.SpoolHash(source, destination, payload.Subject, body, references)

	entry := &models.SpoolEntry{
		Source:               source,
		Destination:          destination,
		Data:                 data,
		DeliveryNotification: b.cfg.Bundles.DeliveryNotification,
		Lifetime:             b.cfg.Bundles.Lifetime,
		Hash:                 hash,
	}
	if err := b.db.InsertSpoolEntry(entry); err != nil {
		return err
	}
	log.Printf("Spooled article for %s with hash %s", destination, hash)

	if err := b.sendEntry(entry); err != nil {
		log.Printf("Failure delivering to DTNd: %v", err)
		b.logSpoolFailure(hash, err)
	}
	return nil
}

// sendEntry transmits one spool entry over the current stream handle.
func (b *Backend) sendEntry(e *models.SpoolEntry) error {
	stream := b.currentStream()
	if stream == nil {
		return dtn.ErrNotConnected
	}
	return stream.Send(&dtn.Frame{
		Source:               e.Source,
		Destination:          e.Destination,
		DeliveryNotification: e.DeliveryNotification,
		Lifetime:             e.Lifetime,
		Data:                 e.Data,
	})
}

// logSpoolFailure appends a timestamped line to the entry's error log.
func (b *Backend) logSpoolFailure(hash string, sendErr error) {
	line := fmt.Sprintf("\n%s ERROR Failure delivering to DTNd: %v",
		time.Now().UTC().Format("2006-01-02T15:04:05.000000"), sendErr)
	if err := b.db.AppendSpoolError(hash, line); err != nil {
		log.Printf("Could not update the error log of spool entry %s: %v", hash, err)
	}
}

// Drain re-sends every spool entry in insertion order, waiting for the
// stream to be connected and yielding between sends. Drain is idempotent: a
// re-sent bundle produces a duplicate acknowledgement that the reconciler
// rejects on the message-id uniqueness invariant.
func (b *Backend) Drain(ctx context.Context) {
	entries, err := b.db.GetSpoolEntries()
	if err != nil {
		log.Printf("Could not read spool for drain: %v", err)
		return
	}
	if len(entries) == 0 {
		return
	}
	log.Printf("Draining %d spooled articles to DTNd", len(entries))

	b.setState(Draining)
	defer func() {
		if b.currentStream() != nil {
			b.setState(Connected)
		}
	}()

	for _, e := range entries {
		stream := b.waitStream(ctx)
		if stream == nil {
			return
		}
		if err := b.sendEntry(e); err != nil {
			log.Printf("Failure delivering spooled article %s to DTNd: %v", e.Hash, err)
			b.logSpoolFailure(e.Hash, err)
		}
		// small yield so drain does not starve other tasks
		if !sleep(ctx, b.cfg.Backoff.ConstantWait) {
			return
		}
	}
}

// parseArticle splits a raw article buffer into its header map and body.
// Header names are lowercased; a line starting with whitespace continues the
// previous header (folding). Everything after the first empty line, joined
// by newlines, is the body.
func parseArticle(lines []string) (map[string]string, string) {
	header := make(map[string]string)
	lastField := ""
	i := 0
	for ; i < len(lines); i++ {
		line := lines[i]
		if line == "" {
			i++
			break
		}
		if strings.HasPrefix(line, " ") || strings.HasPrefix(line, "\t") {
			if lastField != "" {
				header[lastField] += " " + strings.TrimSpace(line)
			}
			continue
		}
		name, value, ok := strings.Cut(line, ":")
		if !ok {
			// fishy header line, ignore it
			continue
		}
		lastField = strings.ToLower(strings.TrimSpace(name))
		header[lastField] = strings.TrimSpace(value)
	}
	return header, strings.Join(lines[i:], "\n")
}
