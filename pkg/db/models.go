package db

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"sort"
	"time"

	"github.com/morezero/device-capabilities/pkg/capability"
)

// ErrNotFound is returned when a device has no snapshot.
var ErrNotFound = errors.New("db: snapshot not found")

// Snapshot is the capability set of a device at one point in time.
type Snapshot struct {
	ID           int64               `json:"id"`
	Device       string              `json:"device"`
	Fingerprint  string              `json:"fingerprint"`
	Capabilities []capability.Record `json:"capabilities"`
	RecordedAt   time.Time           `json:"recordedAt"`
}

// Fingerprint hashes the id/version pairs of records independent of order.
// Names, doc links and legacy flags do not change it.
func Fingerprint(records []capability.Record) string {
	pairs := make([]string, 0, len(records))
	for _, r := range records {
		pairs = append(pairs, string(r.ID)+"@"+r.Version)
	}
	sort.Strings(pairs)

	h := sha256.New()
	for _, p := range pairs {
		h.Write([]byte(p))
		h.Write([]byte{'\n'})
	}
	return hex.EncodeToString(h.Sum(nil))
}
