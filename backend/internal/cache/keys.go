package cache

import "fmt"

// Key semantics:
// - roomKey(projectID):   online devices in the project (ZSet<deviceId>, score=expireAtUnix)
// - namesKey(projectID):  deviceId -> userId mapping for the room (Hash)
// - cursorKey(...):       last reported cursor/selection per device (String, real TTL)

const (
	keyRoomFmt   = "presence:project:{projectID:%s}"       // ZSet<deviceId, expireAtUnix>
	keyNamesFmt  = "presence:project:names:{projectID:%s}" // Hash<deviceId -> userId>
	keyCursorFmt = "presence:cursor:%s:%s"
)

func roomKey(projectID string) string  { return fmt.Sprintf(keyRoomFmt, projectID) }
func namesKey(projectID string) string { return fmt.Sprintf(keyNamesFmt, projectID) }

func cursorKey(projectID, deviceID string) string {
	return fmt.Sprintf(keyCursorFmt, projectID, deviceID)
}
