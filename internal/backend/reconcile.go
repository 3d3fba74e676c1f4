package backend

import (
	"errors"
	"strings"

	"github.com/fxamacker/cbor/v2"
	log "github.com/sirupsen/logrus"

	"github.com/go-dtn/dtnntp/internal/database"
	"github.com/go-dtn/dtnntp/internal/dtn"
	"github.com/go-dtn/dtnntp/internal/models"
)

// ackFrame is the CBOR map DTNd pushes over the backchannel when a bundle
// has been handled: the addressing, the daemon-assigned bundle id and the
// payload bytes.
type ackFrame struct {
	Src  string `cbor:"src"`
	Dst  string `cbor:"dst"`
	Bid  string `cbor:"bid"`
	Data []byte `cbor:"data"`
}

// handleFrame processes one inbound frame. Text frames are status lines;
// binary frames are bundle acknowledgements that get promoted into committed
// articles. Errors here never tear the channel down.
func (b *Backend) handleFrame(frame *dtn.WireFrame) {
	if frame.Kind == dtn.TextFrame {
		switch {
		case strings.HasPrefix(frame.Text, "4"):
			log.Warnf("DTNd reports client error: %s", frame.Text)
		case strings.HasPrefix(frame.Text, "5"):
			log.Errorf("DTNd reports server error: %s", frame.Text)
		default:
			log.Debugf("DTNd status: %s", frame.Text)
		}
		return
	}

	var ack ackFrame
	if err := cbor.Unmarshal(frame.Data, &ack); err != nil {
		log.WithError(err).Warn("Undecodable binary frame from DTNd, skipping")
		return
	}
	b.reconcile(&ack)
}

// reconcile maps the BP7 fields of an acknowledged bundle to NNTP fields,
// commits the article and removes the matching spool entries. A duplicate
// message-id means the frame re-announced something already committed (the
// designed dedup path for drain re-sends); the insert becomes a no-op.
func (b *Backend) reconcile(ack *ackFrame) {
	from, err := dtn.EmailFromURI(ack.Src)
	if err != nil {
		log.Printf("Acknowledgement with unusable source %s: %v", ack.Src, err)
		return
	}

	groupName := dtn.GroupFromDestination(ack.Dst)
	group, err := b.db.GetNewsgroupByName(groupName)
	if err != nil {
		log.Printf("Acknowledgement for unknown group %s, dropping", groupName)
		return
	}

	payload, err := dtn.DecodePayload(ack.Data)
	if err != nil {
		log.WithError(err).WithField("bid", ack.Bid).Warn("Undecodable acknowledgement payload")
		return
	}

	messageID := dtn.MessageIDFromBundleID(ack.Bid)
	article := &models.Article{
		NewsgroupID: group.ID,
		Newsgroup:   group.Name,
		FromHeader:  from,
		Subject:     payload.Subject,
		Body:        payload.Body,
		MessageID:   messageID,
		References:  payload.References,
		ReplyTo:     payload.ReplyTo,
		CreatedAt:   dtn.TimestampFromBundleID(ack.Bid),
		Path:        "!" + b.cfg.NNTP.Hostname,
	}

	if _, err := b.db.InsertArticle(article); err != nil {
		if errors.Is(err, database.ErrDuplicate) {
			log.Debugf("Duplicate acknowledgement for %s, already committed", messageID)
			return
		}
		log.Printf("Could not commit acknowledged article %s: %v", messageID, err)
		return
	}
	log.Printf("Committed article %s to %s", messageID, group.Name)

	// same five fields as the post path, body decompressed on both sides
	hash := dtn.SpoolHash(ack.Src, ack.Dst, payload.Subject, payload.Body, payload.References)
	deleted, err := b.db.DeleteSpoolByHash(hash)
	if err != nil {
		log.Printf("Could not clear spool entry %s: %v", hash, err)
		return
	}
	switch deleted {
	case 0:
		log.Debugf("No spool entry for %s, article originated remotely", messageID)
	case 1:
		log.Printf("Removed spool entry %s after acknowledgement", hash)
	default:
		log.Warnf("Removed %d spool entries for hash %s, expected at most 1", deleted, hash)
	}
}
