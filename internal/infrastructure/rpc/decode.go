package rpc

import (
	"encoding/hex"
	"unicode/utf8"
)

// Symbol message type bytes. Only plain-text payloads are comparable against
// a payment's reference message.
const (
	messageTypePlain     = 0x00
	messageTypeEncrypted = 0x01
)

// DecodeMessage turns a raw transfer message payload (hex string, first byte
// is the message type) into a plain string. Any payload that is not valid
// plain text decodes to the empty string. Absence of a readable message is a
// normal outcome, never an error: it simply fails the equality check
// downstream.
func DecodeMessage(payload string) string {
	if payload == "" {
		return ""
	}

	raw, err := hex.DecodeString(payload)
	if err != nil || len(raw) == 0 {
		return ""
	}
	if raw[0] != messageTypePlain {
		return ""
	}

	text := raw[1:]
	if !utf8.Valid(text) {
		return ""
	}
	return string(text)
}
