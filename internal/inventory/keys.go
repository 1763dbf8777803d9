package inventory

import (
	"fmt"

	"github.com/example/drillcore/pkg/models"
)

// Key layout:
//
//	user:{userId}:mode:{mode}:item:{itemId}:entries  FIFO list of drills
//	user:{userId}:inventory:stats                    hash mode -> count
func entriesKey(userID string, mode models.Mode, itemID int64) string {
	return fmt.Sprintf("user:%s:mode:%s:item:%d:entries", userID, mode, itemID)
}

// entriesPattern matches every item list for one (user, mode).
func entriesPattern(userID string, mode models.Mode) string {
	return fmt.Sprintf("user:%s:mode:%s:item:*:entries", userID, mode)
}

func statsKey(userID string) string {
	return fmt.Sprintf("user:%s:inventory:stats", userID)
}
