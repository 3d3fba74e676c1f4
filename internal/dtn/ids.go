package dtn

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// dtnEpoch is 2000-01-01T00:00:00 UTC, the zero point of DTN time (RFC 9171).
const dtnEpoch int64 = 946684800

// GroupEndpoint returns the BP7 endpoint a newsgroup's articles are
// addressed to.
func GroupEndpoint(group string) string {
	return "dtn://" + group + "/~news"
}

// SenderURI builds the BP7 source endpoint for a local posting identity.
// nodeID is the daemon's node id in the form "dtn://<nodeid>/" with the
// trailing slash preserved.
func SenderURI(nodeID, email string) (string, error) {
	name, domain, ok := strings.Cut(email, "@")
	if !ok || name == "" || domain == "" {
		return "", fmt.Errorf("'%s' is not a valid email address", email)
	}
	if !strings.HasSuffix(nodeID, "/") {
		nodeID += "/"
	}
	return nodeID + "mail/" + domain + "/" + name, nil
}

// EmailFromURI maps a BP7 sender endpoint back to an email address: the last
// path segment is the local part, the second-to-last the domain.
func EmailFromURI(uri string) (string, error) {
	if !strings.HasPrefix(uri, "dtn://") && !strings.HasPrefix(uri, "//") {
		return "", fmt.Errorf("'%s' does not seem to be a valid DTN identifier", uri)
	}
	stripped := strings.TrimPrefix(strings.TrimPrefix(uri, "dtn://"), "//")
	parts := strings.Split(stripped, "/")
	if len(parts) < 2 {
		return "", fmt.Errorf("'%s' does not carry a mail identity", uri)
	}
	return parts[len(parts)-1] + "@" + parts[len(parts)-2], nil
}

// GroupFromDestination extracts the newsgroup name from a group endpoint
// such as "dtn://monntpy.users/~news".
func GroupFromDestination(dst string) string {
	stripped := strings.TrimPrefix(strings.TrimPrefix(dst, "dtn://"), "//")
	return strings.Split(stripped, "/")[0]
}

// ParseBundleID splits a DTNd bundle id "<src>-<timestamp>-<sequence>" on
// its last two dashes. Source endpoints may themselves contain dashes, so
// the split runs from the right.
func ParseBundleID(bid string) (src, ts, seq string) {
	i := strings.LastIndex(bid, "-")
	if i < 0 {
		return bid, "", ""
	}
	seq = bid[i+1:]
	rest := bid[:i]
	j := strings.LastIndex(rest, "-")
	if j < 0 {
		return "", rest, seq
	}
	return rest[:j], rest[j+1:], seq
}

// MessageIDFromBundleID derives the canonical NNTP message-id from a bundle
// id. The mapping is total and deterministic; ingestion and the backchannel
// both use it, so deduplication against the store's message_id column is
// sufficient.
func MessageIDFromBundleID(bid string) string {
	src, ts, seq := ParseBundleID(bid)
	srcLike := strings.TrimPrefix(src, "dtn://")
	srcLike = strings.ReplaceAll(srcLike, "//", "")
	srcLike = strings.ReplaceAll(srcLike, "/", "-")
	return "<" + ts + "-" + seq + "@" + srcLike + ".dtn>"
}

// SpoolHash fingerprints an outbound article. The same five fields are
// hashed when posting and when the acknowledgement comes back, with the body
// always in its decompressed text form, so the hash is the join key between
// spool entries and acknowledged bundles.
func SpoolHash(source, destination, subject, body, references string) string {
	sum := sha256.Sum256([]byte(source + "+" + destination + "+" + subject + "+" + body + "+" + references))
	return hex.EncodeToString(sum[:])
}

// FromDTNTime converts a DTN timestamp (milliseconds since 2000-01-01 UTC)
// to wall-clock time.
func FromDTNTime(ms int64) time.Time {
	return time.Unix(dtnEpoch+ms/1000, (ms%1000)*int64(time.Millisecond)).UTC()
}

// toDTNTime converts wall-clock time to a DTN timestamp in milliseconds.
func toDTNTime(t time.Time) int64 {
	return (t.Unix()-dtnEpoch)*1000 + int64(t.Nanosecond())/int64(time.Millisecond)
}

// TimestampFromBundleID parses the DTN timestamp out of a bundle id. A
// missing or malformed timestamp yields the zero time.
func TimestampFromBundleID(bid string) time.Time {
	_, ts, _ := ParseBundleID(bid)
	ms, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return time.Time{}
	}
	return FromDTNTime(ms)
}
