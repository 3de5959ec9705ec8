package rc

import "strings"

// ExtractRegion derives the remote service region from an activity
// identifier: the fourth colon-separated field, e.g.
// "arn:aws:states:us-west-2:000…:activity:hello" -> "us-west-2".
//
// An empty ARN or one with fewer than four fields yields no region.
func ExtractRegion(activityARN string) (string, bool) {
	if activityARN == "" {
		return "", false
	}
	fields := strings.Split(activityARN, ":")
	if len(fields) < 4 {
		return "", false
	}
	return fields[3], true
}
