/*******************************************************************************
* Contributors: BMC Helix, Inc.
*
* (c) Copyright 2020-2025 BMC Helix, Inc.

* SPDX-License-Identifier: Apache-2.0
*******************************************************************************/

package config

import (
	"os"
	"strings"

	"github.com/lithammer/shortuuid/v3"
)

const defaultTopicPrefix = "aqua"

// GenerateClientId makes broker client ids unique per process so reconnects
// never collide with a stale session held by the broker.
func GenerateClientId(clientId string) string {
	return clientId + "-" + shortuuid.New()
}

// BuildTopicNameFromBaseTopicPrefix prepends the deployment topic prefix when
// the caller passed a bare topic name.
func BuildTopicNameFromBaseTopicPrefix(topic string, separator string) string {
	prefix := os.Getenv("MESSAGEBUS_BASETOPICPREFIX")
	if prefix == "" {
		prefix = defaultTopicPrefix
	}
	if !strings.HasPrefix(topic, prefix) {
		return prefix + separator + topic
	}
	return topic
}
