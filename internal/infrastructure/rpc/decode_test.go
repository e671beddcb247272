package rpc_test

import (
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/bootarou/xympay-sub000/internal/infrastructure/rpc"
)

func plainPayload(text string) string {
	return "00" + hex.EncodeToString([]byte(text))
}

func Test_DecodeMessage(t *testing.T) {
	t.Run("PlainMessage", func(t *testing.T) {
		assert.Equal(t, "A1B2C3D4", rpc.DecodeMessage(plainPayload("A1B2C3D4")))
	})

	t.Run("EmptyPayload", func(t *testing.T) {
		assert.Equal(t, "", rpc.DecodeMessage(""))
	})

	t.Run("PlainMarkerOnly", func(t *testing.T) {
		assert.Equal(t, "", rpc.DecodeMessage("00"))
	})

	t.Run("EncryptedMessage", func(t *testing.T) {
		// First byte 0x01 marks an encrypted payload, which can never match a
		// reference message.
		assert.Equal(t, "", rpc.DecodeMessage("01"+hex.EncodeToString([]byte("A1B2C3D4"))))
	})

	t.Run("InvalidHex", func(t *testing.T) {
		assert.Equal(t, "", rpc.DecodeMessage("zz00ff"))
	})

	t.Run("OddLengthHex", func(t *testing.T) {
		assert.Equal(t, "", rpc.DecodeMessage("00abc"))
	})

	t.Run("InvalidUTF8", func(t *testing.T) {
		assert.Equal(t, "", rpc.DecodeMessage("00fffe"))
	})

	t.Run("UnicodeMessage", func(t *testing.T) {
		assert.Equal(t, "支払い", rpc.DecodeMessage(plainPayload("支払い")))
	})
}
