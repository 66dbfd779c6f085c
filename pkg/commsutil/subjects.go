package commsutil

import (
	"fmt"
	"strings"
)

// Default COMMS subjects.
const (
	SubjectPrefix   = "bridge"
	SubjectActivity = "analytics.activity"
)

// BuildChannelSubject builds the request subject for a bridge channel, e.g.
// ("firebase", "analytics", 1) -> "bridge.firebase.analytics.v1".
func BuildChannelSubject(app, name string, major int) string {
	safe := strings.ReplaceAll(name, ".", "_")
	return fmt.Sprintf("%s.%s.%s.v%d", SubjectPrefix, app, safe, major)
}

// BuildMethodsSubject builds the subject that answers with the channel's method listing.
func BuildMethodsSubject(channelSubject string) string {
	return channelSubject + ".methods"
}

// BuildActivitySubject builds a per-method activity subject under the given root.
func BuildActivitySubject(root, method string) string {
	return fmt.Sprintf("%s.%s", root, method)
}
