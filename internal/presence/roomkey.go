package presence

import "strings"

// NormalizeRoomKey reduces a composite "webinarId:sessionId" key to the webinar id.
// Session granularity is not tracked; every session of a webinar shares one room.
func NormalizeRoomKey(raw string) string {
	if i := strings.IndexByte(raw, ':'); i >= 0 {
		raw = raw[:i]
	}
	return strings.TrimSpace(raw)
}
