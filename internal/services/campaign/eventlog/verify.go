package eventlog

import (
	"context"
	"fmt"

	"github.com/louisbranch/campaignlog/internal/services/campaign/domain/campaign"
	"github.com/louisbranch/campaignlog/internal/services/campaign/storage/integrity"
)

// Report summarizes a verified campaign log.
type Report struct {
	CampaignID string
	Events     int
	LastSeq    uint64
	ChainHash  string
}

// Verify walks the full log of campaignID and checks contiguity from seq 1,
// payload checksums, chain links, chain hashes and signatures. It also checks
// that the registry's committed sequence matches the last stored event. The
// first failure is returned as INTEGRITY_MISMATCH.
func (l *Log) Verify(ctx context.Context, campaignID string) (Report, error) {
	latest, err := l.Latest(ctx, campaignID)
	if err != nil {
		return Report{}, err
	}

	report := Report{CampaignID: campaignID}
	for evt, err := range l.Events(ctx, campaignID, 1) {
		if err != nil {
			return report, err
		}
		expected := report.LastSeq + 1
		if evt.Seq != expected {
			return report, campaign.IntegrityMismatch(campaignID, expected, "event sequence",
				fmt.Errorf("expected seq %d, found %d", expected, evt.Seq))
		}
		if err := integrity.VerifyEvent(evt, report.ChainHash, l.keyring); err != nil {
			return report, campaign.IntegrityMismatch(campaignID, evt.Seq, "event", err)
		}
		report.Events++
		report.LastSeq = evt.Seq
		report.ChainHash = evt.ChainHash
	}
	if report.LastSeq != latest {
		return report, campaign.IntegrityMismatch(campaignID, latest, "current sequence",
			fmt.Errorf("registry records seq %d but log ends at %d", latest, report.LastSeq))
	}
	return report, nil
}
