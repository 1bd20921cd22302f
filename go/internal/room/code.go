package room

import (
	"strings"

	"github.com/google/uuid"
)

const roomCodeLength = 8

// newRoomCode returns a short shareable room code: the first eight
// characters of a random UUID, upper-cased.
func newRoomCode() string {
	return strings.ToUpper(uuid.New().String()[:roomCodeLength])
}
