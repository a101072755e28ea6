package credutil

import "strings"

// iOS nodes register under a "ios-<device>" or "iphone-<device>" naming
// convention instead of a machine hostname.
var iosNodePrefixes = []string{"ios-", "iphone-"}

// IosDeviceIDFromNodeID extracts the device suffix from an iOS-convention
// node id. Returns ok=false for node ids that do not follow the convention
// or carry an empty suffix.
func IosDeviceIDFromNodeID(nodeID string) (string, bool) {
	lower := strings.ToLower(strings.TrimSpace(nodeID))
	for _, prefix := range iosNodePrefixes {
		if strings.HasPrefix(lower, prefix) {
			suffix := strings.TrimPrefix(lower, prefix)
			if suffix == "" {
				return "", false
			}
			return suffix, true
		}
	}
	return "", false
}
