/*******************************************************************************
* Contributors: BMC Helix, Inc.
*
* (c) Copyright 2020-2025 BMC Helix, Inc.

* SPDX-License-Identifier: Apache-2.0
*******************************************************************************/

package broker

import "strings"

// TopicMatches reports whether a concrete topic satisfies an MQTT-style
// subscription pattern. `+` matches exactly one level, `#` matches any number
// of trailing levels and is only valid as the final segment. A pattern with a
// misplaced `#` or a level-count mismatch is a non-match, never an error.
func TopicMatches(topic string, pattern string) bool {
	topicParts := strings.Split(topic, "/")
	patternParts := strings.Split(pattern, "/")

	for i, patternPart := range patternParts {
		if patternPart == "#" {
			// must be the last pattern segment; every prior segment matched
			return i == len(patternParts)-1
		}
		if i >= len(topicParts) {
			return false
		}
		if patternPart != "+" && patternPart != topicParts[i] {
			return false
		}
	}

	return len(topicParts) == len(patternParts)
}
