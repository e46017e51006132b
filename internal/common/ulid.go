package common

import (
	"crypto/rand"
	"time"

	"github.com/oklog/ulid/v2"
)

// NewStreamID returns a fresh stream identifier. ULIDs sort by creation time,
// which keeps alternatives ordered without an extra column.
func NewStreamID() (string, error) {
	id, err := ulid.New(ulid.Timestamp(time.Now()), rand.Reader)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}
