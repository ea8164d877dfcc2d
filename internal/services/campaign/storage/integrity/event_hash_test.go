package integrity

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/louisbranch/campaignlog/internal/services/campaign/domain/event"
)

func testEvent(seq uint64, payload string) event.Event {
	return event.Event{
		CampaignID:    "c1",
		Seq:           seq,
		Type:          event.TypeSimulationStep,
		SchemaVersion: event.SchemaVersion,
		PayloadJSON:   json.RawMessage(payload),
		Timestamp:     time.Date(2024, 2, 1, 10, 30, 0, 0, time.UTC),
	}
}

func TestPayloadChecksumIgnoresKeyOrder(t *testing.T) {
	a, err := PayloadChecksum(json.RawMessage(`{"b":1,"a":2}`))
	if err != nil {
		t.Fatalf("checksum: %v", err)
	}
	b, err := PayloadChecksum(json.RawMessage(`{"a":2,"b":1}`))
	if err != nil {
		t.Fatalf("checksum: %v", err)
	}
	if a != b {
		t.Fatalf("expected equal checksums, got %s and %s", a, b)
	}
	if _, err := PayloadChecksum(nil); err == nil {
		t.Fatal("expected error for empty payload")
	}
}

func TestChainHashRequiresChecksum(t *testing.T) {
	if _, err := ChainHash(testEvent(1, `{}`), ""); err == nil {
		t.Fatal("expected error when checksum is missing")
	}
}

func TestChainHashDependsOnPrevHash(t *testing.T) {
	evt := testEvent(2, `{"step":1}`)
	evt.Checksum = "abc"

	first, err := ChainHash(evt, "prev-1")
	if err != nil {
		t.Fatalf("chain hash: %v", err)
	}
	second, err := ChainHash(evt, "prev-2")
	if err != nil {
		t.Fatalf("chain hash: %v", err)
	}
	if first == second {
		t.Fatal("expected chain hash to change with prev hash")
	}
}

func TestSealAndVerifyChain(t *testing.T) {
	ring := testKeyring(t)

	first, err := Seal(testEvent(1, `{"step":0}`), "ignored", ring)
	if err != nil {
		t.Fatalf("seal first: %v", err)
	}
	if first.PrevHash != "" {
		t.Fatalf("expected first event without prev hash, got %q", first.PrevHash)
	}
	second, err := Seal(testEvent(2, `{"step":1}`), first.ChainHash, ring)
	if err != nil {
		t.Fatalf("seal second: %v", err)
	}

	if err := VerifyEvent(first, "", ring); err != nil {
		t.Fatalf("verify first: %v", err)
	}
	if err := VerifyEvent(second, first.ChainHash, ring); err != nil {
		t.Fatalf("verify second: %v", err)
	}
}

func TestVerifyEventDetectsTampering(t *testing.T) {
	ring := testKeyring(t)
	first, err := Seal(testEvent(1, `{"step":0}`), "", ring)
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	second, err := Seal(testEvent(2, `{"credits":1050,"step":1}`), first.ChainHash, ring)
	if err != nil {
		t.Fatalf("seal: %v", err)
	}

	payload := second
	payload.PayloadJSON = json.RawMessage(`{"credits":9999,"step":1}`)
	if err := VerifyEvent(payload, first.ChainHash, ring); !errors.Is(err, ErrChecksumMismatch) {
		t.Fatalf("expected checksum mismatch, got %v", err)
	}

	link := second
	if err := VerifyEvent(link, "other", ring); !errors.Is(err, ErrPrevHashMismatch) {
		t.Fatalf("expected prev hash mismatch, got %v", err)
	}

	envelope := second
	envelope.Timestamp = envelope.Timestamp.Add(time.Second)
	if err := VerifyEvent(envelope, first.ChainHash, ring); !errors.Is(err, ErrChainHashMismatch) {
		t.Fatalf("expected chain hash mismatch, got %v", err)
	}

	signed := second
	signed.Signature = "forged"
	if err := VerifyEvent(signed, first.ChainHash, ring); !errors.Is(err, ErrSignatureMismatch) {
		t.Fatalf("expected signature mismatch, got %v", err)
	}
}

func TestVerifyPayloadWithoutKeyring(t *testing.T) {
	sealed, err := Seal(testEvent(1, `{"step":0}`), "", testKeyring(t))
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	if err := VerifyPayload(sealed); err != nil {
		t.Fatalf("verify payload: %v", err)
	}
	sealed.Checksum = "0000"
	if err := VerifyPayload(sealed); !errors.Is(err, ErrChecksumMismatch) {
		t.Fatalf("expected checksum mismatch, got %v", err)
	}
}

func TestSealRequiresKeyring(t *testing.T) {
	if _, err := Seal(testEvent(1, `{}`), "", nil); err == nil {
		t.Fatal("expected error without keyring")
	}
}
