package campaignlog

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"

	"github.com/louisbranch/campaignlog/internal/services/campaign/domain/campaign"
	"github.com/louisbranch/campaignlog/internal/services/campaign/storage"
)

var (
	okLabel   = color.New(color.FgGreen)
	warnLabel = color.New(color.FgYellow)
	errLabel  = color.New(color.FgRed)
	dimLabel  = color.New(color.FgHiBlack)
)

func disableColor() {
	color.NoColor = true
}

func statusLabel(status campaign.Status) string {
	switch status {
	case campaign.StatusActive:
		return okLabel.Sprint(status)
	case campaign.StatusPaused:
		return warnLabel.Sprint(status)
	case campaign.StatusCompleted:
		return color.New(color.FgCyan).Sprint(status)
	case campaign.StatusArchived:
		return dimLabel.Sprint(status)
	default:
		return string(status)
	}
}

func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.UTC().Format(time.RFC3339)
}

func printCampaigns(w io.Writer, records []storage.CampaignRecord) error {
	if len(records) == 0 {
		_, err := fmt.Fprintln(w, "No campaigns found")
		return err
	}
	tw := newTable(w)
	fmt.Fprintln(tw, "ID\tNAME\tSTATUS\tSEQ\tPARENT\tLAST ACTIVITY")
	for _, rec := range records {
		parent := "-"
		if rec.IsBranch() {
			parent = fmt.Sprintf("%s@%d", rec.ParentCampaignID, rec.BranchPointSeq)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%s\n",
			rec.ID, rec.Name, statusLabel(rec.Status), rec.CurrentSeq, parent, formatTime(rec.LastActivityAt))
	}
	return tw.Flush()
}

func printCampaign(w io.Writer, rec storage.CampaignRecord) error {
	tw := newTable(w)
	fmt.Fprintf(tw, "ID:\t%s\n", rec.ID)
	fmt.Fprintf(tw, "Name:\t%s\n", rec.Name)
	fmt.Fprintf(tw, "Seed:\t%s\n", rec.Seed)
	fmt.Fprintf(tw, "Status:\t%s\n", statusLabel(rec.Status))
	fmt.Fprintf(tw, "Current seq:\t%d\n", rec.CurrentSeq)
	if rec.IsBranch() {
		fmt.Fprintf(tw, "Parent:\t%s\n", rec.ParentCampaignID)
		fmt.Fprintf(tw, "Branch point:\t%d\n", rec.BranchPointSeq)
		fmt.Fprintf(tw, "Origin:\t%s\n", rec.OriginCampaignID)
	}
	fmt.Fprintf(tw, "Created:\t%s\n", formatTime(rec.CreatedAt))
	fmt.Fprintf(tw, "Last activity:\t%s\n", formatTime(rec.LastActivityAt))
	if rec.ArchivedAt != nil {
		fmt.Fprintf(tw, "Archived:\t%s\n", formatTime(*rec.ArchivedAt))
	}
	return tw.Flush()
}
