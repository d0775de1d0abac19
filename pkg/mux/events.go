package mux

import (
	"encoding/json"
	"errors"
)

// Webhook event types this system reacts to. The provider emits many more;
// anything else is irrelevant and dropped by the caller.
const (
	EventAssetReady    = "video.asset.ready"
	EventAssetErrored  = "video.asset.errored"
	EventUploadErrored = "video.upload.errored"
)

// ErrMalformedEvent is returned when a webhook payload fails structural validation.
var ErrMalformedEvent = errors.New("malformed webhook event")

// Event is a provider webhook delivery. Asset events carry asset-shaped data;
// upload events reuse the same shape with the upload id in Data.ID.
type Event struct {
	Type string `json:"type"`
	Data *Asset `json:"data"`
}

// ParseEvent decodes a raw webhook body and validates its structure.
// An event must carry a type and a data object to be processable at all.
func ParseEvent(body []byte) (*Event, error) {
	if len(body) == 0 {
		return nil, ErrMalformedEvent
	}

	var event Event
	if err := json.Unmarshal(body, &event); err != nil {
		return nil, ErrMalformedEvent
	}

	if event.Type == "" || event.Data == nil {
		return nil, ErrMalformedEvent
	}

	return &event, nil
}
