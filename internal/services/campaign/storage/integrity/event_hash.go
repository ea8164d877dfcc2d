package integrity

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/louisbranch/campaignlog/internal/services/campaign/domain/core/encoding"
	"github.com/louisbranch/campaignlog/internal/services/campaign/domain/event"
)

var (
	// ErrChecksumMismatch indicates the payload no longer hashes to its checksum.
	ErrChecksumMismatch = errors.New("payload checksum mismatch")
	// ErrPrevHashMismatch indicates a broken link to the previous event.
	ErrPrevHashMismatch = errors.New("prev hash mismatch")
	// ErrChainHashMismatch indicates the envelope no longer hashes to its chain hash.
	ErrChainHashMismatch = errors.New("chain hash mismatch")
	// ErrSignatureMismatch indicates the chain hash signature is invalid.
	ErrSignatureMismatch = errors.New("signature mismatch")
)

// PayloadChecksum hashes the canonical form of an event payload.
func PayloadChecksum(payload json.RawMessage) (string, error) {
	if len(payload) == 0 {
		return "", fmt.Errorf("payload is required")
	}
	return encoding.ContentHash(payload)
}

// ChainHash computes the hash that links an event to its predecessor. The
// event checksum must already be set.
func ChainHash(evt event.Event, prevHash string) (string, error) {
	if strings.TrimSpace(evt.Checksum) == "" {
		return "", fmt.Errorf("event checksum is required")
	}
	if evt.Seq == 0 {
		return "", fmt.Errorf("event seq is required")
	}
	envelope := map[string]any{
		"campaign_id":    evt.CampaignID,
		"seq":            evt.Seq,
		"type":           string(evt.Type),
		"schema_version": evt.SchemaVersion,
		"checksum":       evt.Checksum,
		"timestamp_ms":   evt.Timestamp.UTC().UnixMilli(),
		"prev_hash":      prevHash,
	}
	return encoding.ContentHash(envelope)
}

// Seal fills the checksum, chain link and signature of an event whose campaign
// id, seq, type, schema version, payload and timestamp are final.
func Seal(evt event.Event, prevChainHash string, ring *Keyring) (event.Event, error) {
	if ring == nil {
		return event.Event{}, fmt.Errorf("event integrity keyring is required")
	}
	checksum, err := PayloadChecksum(evt.PayloadJSON)
	if err != nil {
		return event.Event{}, fmt.Errorf("compute payload checksum: %w", err)
	}
	evt.Checksum = checksum

	if evt.Seq == 1 {
		prevChainHash = ""
	}
	chainHash, err := ChainHash(evt, prevChainHash)
	if err != nil {
		return event.Event{}, fmt.Errorf("compute chain hash: %w", err)
	}
	signature, keyID, err := ring.SignChainHash(evt.CampaignID, chainHash)
	if err != nil {
		return event.Event{}, fmt.Errorf("sign chain hash: %w", err)
	}

	evt.PrevHash = prevChainHash
	evt.ChainHash = chainHash
	evt.Signature = signature
	evt.SignatureKeyID = keyID
	return evt, nil
}

// VerifyPayload checks the payload checksum and the chain hash of one event
// without a keyring. Links to the predecessor are the caller's concern.
func VerifyPayload(evt event.Event) error {
	checksum, err := PayloadChecksum(evt.PayloadJSON)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrChecksumMismatch, err)
	}
	if checksum != evt.Checksum {
		return ErrChecksumMismatch
	}
	chainHash, err := ChainHash(evt, evt.PrevHash)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrChainHashMismatch, err)
	}
	if chainHash != evt.ChainHash {
		return ErrChainHashMismatch
	}
	return nil
}

// VerifyEvent checks an event against its expected predecessor chain hash and
// the keyring signature.
func VerifyEvent(evt event.Event, prevChainHash string, ring *Keyring) error {
	if evt.Seq == 1 && evt.PrevHash != "" {
		return fmt.Errorf("%w: first event must not link a predecessor", ErrPrevHashMismatch)
	}
	if evt.Seq > 1 && evt.PrevHash != prevChainHash {
		return ErrPrevHashMismatch
	}
	if err := VerifyPayload(evt); err != nil {
		return err
	}
	if err := ring.VerifyChainHash(evt.CampaignID, evt.ChainHash, evt.Signature, evt.SignatureKeyID); err != nil {
		return fmt.Errorf("%w: %v", ErrSignatureMismatch, err)
	}
	return nil
}
