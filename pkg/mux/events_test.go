package mux

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEventValid(t *testing.T) {
	body := []byte(`{
		"type": "video.asset.ready",
		"data": {
			"id": "asset-1",
			"status": "ready",
			"passthrough": "lesson-uuid",
			"duration": 93.4,
			"playback_ids": [{"id": "pb123", "policy": "signed"}]
		}
	}`)

	event, err := ParseEvent(body)
	require.NoError(t, err)

	assert.Equal(t, EventAssetReady, event.Type)
	assert.Equal(t, "asset-1", event.Data.ID)
	assert.Equal(t, "lesson-uuid", event.Data.Passthrough)
	assert.Equal(t, "pb123", event.Data.FirstPlaybackID())
}

func TestParseEventRejectsMalformedBodies(t *testing.T) {
	cases := map[string][]byte{
		"empty body":   nil,
		"invalid json": []byte(`{not json`),
		"missing type": []byte(`{"data": {"id": "asset-1"}}`),
		"missing data": []byte(`{"type": "video.asset.ready"}`),
	}

	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseEvent(body)
			assert.ErrorIs(t, err, ErrMalformedEvent)
		})
	}
}

func TestParseEventKeepsUnknownTypes(t *testing.T) {
	// Unknown but well-formed events parse fine; filtering is the caller's job.
	event, err := ParseEvent([]byte(`{"type": "video.asset.deleted", "data": {"id": "asset-1"}}`))
	require.NoError(t, err)
	assert.Equal(t, "video.asset.deleted", event.Type)
}

func TestErrorReason(t *testing.T) {
	asset := &Asset{Errors: &AssetErrors{
		Type:     "invalid_input",
		Messages: []string{"unsupported codec", "bad container"},
	}}
	assert.Equal(t, "unsupported codec; bad container", asset.ErrorReason())

	asset.Errors.Messages = nil
	assert.Equal(t, "invalid_input", asset.ErrorReason())

	assert.Empty(t, (&Asset{}).ErrorReason())
	assert.Empty(t, (*Asset)(nil).ErrorReason())
}
