package audit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashDeterministic(t *testing.T) {
	at := time.Date(2024, 1, 3, 12, 0, 0, 0, time.UTC)
	payload := Payload("sessions", "abc", "CREATE", "ABSENT", `{"balance":"170"}`)

	h1 := Hash(Genesis, at, payload)
	h2 := Hash(Genesis, at, payload)

	require.Equal(t, h1, h2)
	assert.Len(t, h1, 64)
}

func TestHashSensitivity(t *testing.T) {
	at := time.Date(2024, 1, 3, 12, 0, 0, 0, time.UTC)
	payload := Payload("sessions", "abc", "CREATE", "ABSENT", "new")
	base := Hash(Genesis, at, payload)

	assert.NotEqual(t, base, Hash("deadbeef", at, payload))
	assert.NotEqual(t, base, Hash(Genesis, at.Add(time.Second), payload))
	assert.NotEqual(t, base, Hash(Genesis, at, payload+"x"))
}

func TestVerify(t *testing.T) {
	at := time.Date(2024, 1, 3, 12, 0, 0, 0, time.UTC)

	var links []Link
	prev := Genesis
	for i, payload := range []string{"first", "second", "third"} {
		ts := at.Add(time.Duration(i) * time.Minute)
		link := Link{PrevHash: prev, Time: ts, Payload: payload}
		link.Hash = Hash(prev, ts, payload)
		links = append(links, link)
		prev = link.Hash
	}

	assert.True(t, Verify(nil), "empty chain is valid")
	assert.True(t, Verify(links))

	t.Run("tampered payload", func(t *testing.T) {
		tampered := append([]Link(nil), links...)
		tampered[1].Payload = "rewritten"
		assert.False(t, Verify(tampered))
	})

	t.Run("removed link", func(t *testing.T) {
		truncated := []Link{links[0], links[2]}
		assert.False(t, Verify(truncated))
	})

	t.Run("forged hash", func(t *testing.T) {
		forged := append([]Link(nil), links...)
		forged[2].Hash = Hash("0000", forged[2].Time, forged[2].Payload)
		assert.False(t, Verify(forged))
	})
}
