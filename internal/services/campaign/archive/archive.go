// Package archive exports campaign logs to object storage.
//
// An export is the full event log rendered as newline-delimited JSON under
// campaigns/<id>/events-<seq>.ndjson, where seq is the last exported event.
// Exports never delete: a later export of the same campaign writes a new key.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/louisbranch/campaignlog/internal/services/campaign/eventlog"
)

// ContentType is the media type of exported logs.
const ContentType = "application/x-ndjson"

var (
	// ErrEventLogRequired indicates a missing event log.
	ErrEventLogRequired = errors.New("event log is required")
	// ErrSinkRequired indicates a missing archive sink.
	ErrSinkRequired = errors.New("archive sink is required")
)

// Sink stores exported objects.
type Sink interface {
	Put(ctx context.Context, key string, body []byte, contentType string) error
}

// Export describes a written archive object.
type Export struct {
	CampaignID string
	Key        string
	Events     int
	LastSeq    uint64
	Bytes      int
}

// Exporter writes campaign logs to a Sink.
type Exporter struct {
	events *eventlog.Log
	sink   Sink
}

// NewExporter builds an Exporter.
func NewExporter(events *eventlog.Log, sink Sink) (*Exporter, error) {
	if events == nil {
		return nil, ErrEventLogRequired
	}
	if sink == nil {
		return nil, ErrSinkRequired
	}
	return &Exporter{events: events, sink: sink}, nil
}

// Key returns the object key for an export ending at lastSeq.
func Key(campaignID string, lastSeq uint64) string {
	return fmt.Sprintf("campaigns/%s/events-%d.ndjson", campaignID, lastSeq)
}

// Export streams every event of campaignID into one NDJSON object.
func (e *Exporter) Export(ctx context.Context, campaignID string) (Export, error) {
	campaignID = strings.TrimSpace(campaignID)
	if campaignID == "" {
		return Export{}, fmt.Errorf("campaign id is required")
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	out := Export{CampaignID: campaignID}
	for evt, err := range e.events.Events(ctx, campaignID, 1) {
		if err != nil {
			return Export{}, err
		}
		if err := enc.Encode(evt); err != nil {
			return Export{}, fmt.Errorf("encode event %d: %w", evt.Seq, err)
		}
		out.Events++
		out.LastSeq = evt.Seq
	}

	out.Key = Key(campaignID, out.LastSeq)
	out.Bytes = buf.Len()
	if err := e.sink.Put(ctx, out.Key, buf.Bytes(), ContentType); err != nil {
		return Export{}, fmt.Errorf("write archive %s: %w", out.Key, err)
	}
	return out, nil
}
