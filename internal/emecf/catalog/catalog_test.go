package catalog

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEveryKnownCodeHasMessage(t *testing.T) {
	codes := Codes()
	assert.NotEmpty(t, codes)
	for _, code := range codes {
		msg, ok := Lookup(code)
		assert.True(t, ok, "code %d", code)
		assert.NotEmpty(t, strings.TrimSpace(msg), "code %d", code)
	}
}

func TestCodeElevenMapsToSingleMessage(t *testing.T) {
	msg, ok := Lookup(11)
	assert.True(t, ok)
	assert.Equal(t, msg, Message(11))

	seen := 0
	for _, code := range Codes() {
		if Message(code) == msg {
			seen++
		}
	}
	assert.Equal(t, 1, seen)
}

func TestUnknownCodeFallsBack(t *testing.T) {
	_, ok := Lookup(4242)
	assert.False(t, ok)
	assert.Equal(t, "Erreur inconnue retournée par e-MECeF (code 4242)", Message(4242))
	assert.NotPanics(t, func() { _ = Message(-1) })
}

func TestCodesAreSorted(t *testing.T) {
	codes := Codes()
	for i := 1; i < len(codes); i++ {
		assert.Less(t, codes[i-1], codes[i])
	}
}
