// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package broker

import (
	"encoding/json"
	"strings"
	"time"
)

// Wildcard is the device id that addresses the gateway itself.
const Wildcard = "*"

const commandSuffix = "/cmd"

// RawTopic returns the raw-backup topic for a record attributed to id.
func RawTopic(prefix, id string) string {
	return prefix + "/" + id
}

// OfflineTopic returns the topic pseudo offline notifications for id
// are published on.
func OfflineTopic(prefix, id string) string {
	return prefix + "/" + id
}

// DeviceFromCommandTopic returns the segment preceding the trailing
// "/cmd" of topic:
//
//	"owntracks/gv/92939391/cmd" => "92939391"
//
// It returns false for topics that do not end in "/cmd" or have an
// empty device segment.
func DeviceFromCommandTopic(topic string) (string, bool) {
	trimmed, ok := strings.CutSuffix(topic, commandSuffix)
	if !ok {
		return "", false
	}
	device := trimmed[strings.LastIndexByte(trimmed, '/')+1:]
	if device == "" {
		return "", false
	}
	return device, true
}

// AdminCommand is a command addressed to Wildcard.
type AdminCommand string

const (
	AdminList  AdminCommand = "list"
	AdminStats AdminCommand = "stats"
	AdminDump  AdminCommand = "dump"
	AdminPing  AdminCommand = "ping"
)

// ParseAdminCommand matches payload exactly, case-sensitively, against
// the known admin commands.
func ParseAdminCommand(payload []byte) (AdminCommand, bool) {
	switch command := AdminCommand(payload); command {
	case AdminList, AdminStats, AdminDump, AdminPing:
		return command, true
	}
	return "", false
}

// notification is the envelope for JSON messages the gateway
// originates. The "_type" key follows the OwnTracks convention that
// downstream consumers of these topics already parse.
type notification struct {
	Type        string            `json:"_type"`
	Timestamp   int64             `json:"tst"`
	Connections *int              `json:"connections,omitempty"`
	Counters    map[string]uint64 `json:"counters,omitempty"`
}

// OfflinePayload returns the pseudo offline notification
// {"_type":"lwt","tst":<unix>}.
func OfflinePayload(now time.Time) []byte {
	return encode(notification{Type: "lwt", Timestamp: now.Unix()})
}

// PongPayload returns the reply to the ping admin command.
func PongPayload(now time.Time) []byte {
	return encode(notification{Type: "pong", Timestamp: now.Unix()})
}

// StatsPayload returns the reply to the stats admin command.
func StatsPayload(now time.Time, connections int, counters map[string]uint64) []byte {
	return encode(notification{
		Type:        "stats",
		Timestamp:   now.Unix(),
		Connections: &connections,
		Counters:    counters,
	})
}

func encode(value notification) []byte {
	data, err := json.Marshal(value)
	if err != nil {
		// Only strings, integers and a string-keyed map: unreachable.
		panic("broker: encoding notification: " + err.Error())
	}
	return data
}
