package campaignlog

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/louisbranch/campaignlog/internal/services/campaign/app"
	"github.com/louisbranch/campaignlog/internal/services/campaign/branch"
	"github.com/louisbranch/campaignlog/internal/services/campaign/domain/campaign"
	"github.com/louisbranch/campaignlog/internal/services/campaign/domain/state"
	"github.com/louisbranch/campaignlog/internal/services/campaign/registry"
	"github.com/louisbranch/campaignlog/internal/services/campaign/replay"
)

func createCmd() *cobra.Command {
	var seed, initial string
	cmd := &cobra.Command{
		Use:   "create NAME",
		Short: "Create a campaign",
		Args:  cobra.ExactArgs(1),
		RunE: withService(func(cmd *cobra.Command, svc *app.Service, args []string) error {
			in := registry.CreateInput{Name: args[0], Seed: seed}
			if strings.TrimSpace(initial) != "" {
				st, err := state.Parse([]byte(initial))
				if err != nil {
					return fmt.Errorf("--state: %w", err)
				}
				in.InitialState = st
			}
			rec, err := svc.CreateCampaign(cmd.Context(), in)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s Created campaign %s: %s\n", okLabel.Sprint("✓"), rec.ID, rec.Name)
			return nil
		}),
	}
	cmd.Flags().StringVar(&seed, "seed", "", "deterministic simulation seed (required)")
	cmd.Flags().StringVar(&initial, "state", "", "initial state as a JSON object")
	return cmd
}

func listCmd() *cobra.Command {
	var statuses []string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List campaigns, most recently active first",
		Args:  cobra.NoArgs,
		RunE: withService(func(cmd *cobra.Command, svc *app.Service, _ []string) error {
			filter, err := parseStatuses(statuses)
			if err != nil {
				return err
			}
			records, err := svc.ListCampaigns(cmd.Context(), filter...)
			if err != nil {
				return err
			}
			return printCampaigns(cmd.OutOrStdout(), records)
		}),
	}
	cmd.Flags().StringSliceVar(&statuses, "status", nil, "only list campaigns in these statuses")
	return cmd
}

func showCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show ID",
		Short: "Show a campaign record",
		Args:  cobra.ExactArgs(1),
		RunE: withService(func(cmd *cobra.Command, svc *app.Service, args []string) error {
			rec, err := svc.GetCampaign(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printCampaign(cmd.OutOrStdout(), rec)
		}),
	}
}

func resumeCmd() *cobra.Command {
	var until uint64
	var full bool
	cmd := &cobra.Command{
		Use:   "resume ID",
		Short: "Reconstruct and print campaign state",
		Args:  cobra.ExactArgs(1),
		RunE: withService(func(cmd *cobra.Command, svc *app.Service, args []string) error {
			res, err := svc.ResumeCampaignWith(cmd.Context(), args[0], replay.Options{UntilSeq: until, IgnoreSnapshots: full})
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			source := "log"
			if res.FromSnapshot {
				source = fmt.Sprintf("snapshot %d", res.SnapshotSeq)
			}
			fmt.Fprintf(out, "seq %d (%s + %d events)\n", res.Seq, source, res.Applied)
			fmt.Fprintln(out, res.State.String())
			return nil
		}),
	}
	cmd.Flags().Uint64Var(&until, "until", 0, "reconstruct state as of this sequence")
	cmd.Flags().BoolVar(&full, "full", false, "ignore snapshots and fold from the first event")
	return cmd
}

func stepCmd() *cobra.Command {
	var actions, seed string
	var count int
	cmd := &cobra.Command{
		Use:   "step ID",
		Short: "Run simulation steps and record them",
		Args:  cobra.ExactArgs(1),
		RunE: withService(func(cmd *cobra.Command, svc *app.Service, args []string) error {
			if count <= 0 {
				return fmt.Errorf("--count must be positive")
			}
			var raw json.RawMessage
			if strings.TrimSpace(actions) != "" {
				if !json.Valid([]byte(actions)) {
					return fmt.Errorf("--actions must be valid JSON")
				}
				raw = json.RawMessage(actions)
			}
			out := cmd.OutOrStdout()
			for i := 0; i < count; i++ {
				res, err := svc.ExecuteStep(cmd.Context(), app.StepInput{CampaignID: args[0], Seed: seed, Actions: raw})
				if err != nil {
					return err
				}
				marker := ""
				if res.SnapshotScheduled {
					marker = dimLabel.Sprint(" [snapshot]")
				}
				fmt.Fprintf(out, "seq %d%s %s\n", res.Event.Seq, marker, res.State.String())
			}
			return nil
		}),
	}
	cmd.Flags().StringVar(&actions, "actions", "", "step actions as JSON, e.g. {\"credits\":50}")
	cmd.Flags().StringVar(&seed, "seed", "", "override the campaign seed for this step")
	cmd.Flags().IntVar(&count, "count", 1, "number of steps to run")
	return cmd
}

func branchCmd() *cobra.Command {
	var seq uint64
	var step int64
	var name string
	cmd := &cobra.Command{
		Use:   "branch ID",
		Short: "Fork a campaign at a sequence or step",
		Args:  cobra.ExactArgs(1),
		RunE: withService(func(cmd *cobra.Command, svc *app.Service, args []string) error {
			bySeq := cmd.Flags().Changed("seq")
			byStep := cmd.Flags().Changed("step")
			if bySeq == byStep {
				return fmt.Errorf("exactly one of --seq or --step is required")
			}
			point := branch.AtSeq(seq)
			if byStep {
				point = branch.AtStep(step)
			}
			res, err := svc.BranchCampaign(cmd.Context(), branch.Input{ParentCampaignID: args[0], Point: point, Name: name})
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s Created branch %s: %s\n", okLabel.Sprint("✓"), res.Campaign.ID, res.Campaign.Name)
			fmt.Fprintf(out, "  Parent: %s at seq %d\n", res.Campaign.ParentCampaignID, res.Campaign.BranchPointSeq)
			if !res.Snapshotted {
				fmt.Fprintf(out, "  %s branch-point snapshot not saved\n", warnLabel.Sprint("!"))
			}
			return nil
		}),
	}
	cmd.Flags().Uint64Var(&seq, "seq", 0, "branch after this parent sequence")
	cmd.Flags().Int64Var(&step, "step", 0, "branch after the event that produced this step")
	cmd.Flags().StringVar(&name, "name", "", "branch name (default \"<parent> (Branch)\")")
	return cmd
}

func branchesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "branches ID",
		Short: "List the direct branches of a campaign",
		Args:  cobra.ExactArgs(1),
		RunE: withService(func(cmd *cobra.Command, svc *app.Service, args []string) error {
			records, err := svc.ListBranches(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printCampaigns(cmd.OutOrStdout(), records)
		}),
	}
}

func snapshotCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "snapshot ID",
		Short: "Save a snapshot at the campaign head",
		Args:  cobra.ExactArgs(1),
		RunE: withService(func(cmd *cobra.Command, svc *app.Service, args []string) error {
			snap, err := svc.SnapshotCampaign(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s Snapshot %s@%d checksum %s\n", okLabel.Sprint("✓"), snap.CampaignID, snap.Seq, snap.Checksum)
			return nil
		}),
	}
}

func snapshotsCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "snapshots ID",
		Short: "List snapshots, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: withService(func(cmd *cobra.Command, svc *app.Service, args []string) error {
			snaps, err := svc.ListSnapshots(cmd.Context(), args[0], limit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(snaps) == 0 {
				fmt.Fprintln(out, "No snapshots found")
				return nil
			}
			tw := newTable(out)
			fmt.Fprintln(tw, "SEQ\tCHECKSUM\tCREATED")
			for _, snap := range snaps {
				fmt.Fprintf(tw, "%d\t%s\t%s\n", snap.Seq, snap.Checksum, formatTime(snap.CreatedAt))
			}
			return tw.Flush()
		}),
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum snapshots to list")
	return cmd
}

func eventsCmd() *cobra.Command {
	var from uint64
	var limit int
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "events ID",
		Short: "List campaign events",
		Args:  cobra.ExactArgs(1),
		RunE: withService(func(cmd *cobra.Command, svc *app.Service, args []string) error {
			events, err := svc.ListEvents(cmd.Context(), args[0], from, limit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				for _, evt := range events {
					if err := enc.Encode(evt); err != nil {
						return err
					}
				}
				return nil
			}
			tw := newTable(out)
			fmt.Fprintln(tw, "SEQ\tTYPE\tTIMESTAMP\tCHECKSUM")
			for _, evt := range events {
				fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", evt.Seq, evt.Type, formatTime(evt.Timestamp), evt.Checksum)
			}
			return tw.Flush()
		}),
	}
	cmd.Flags().Uint64Var(&from, "from", 1, "first sequence to list")
	cmd.Flags().IntVar(&limit, "limit", app.DefaultEventPage, "maximum events to list")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print events as newline-delimited JSON")
	return cmd
}

func verifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify ID",
		Short: "Verify the checksum and hash chain of a campaign log",
		Args:  cobra.ExactArgs(1),
		RunE: withService(func(cmd *cobra.Command, svc *app.Service, args []string) error {
			report, err := svc.VerifyCampaign(cmd.Context(), args[0])
			if err != nil {
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", errLabel.Sprint("✗"), args[0])
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s: %d events verified through seq %d\n",
				okLabel.Sprint("✓"), report.CampaignID, report.Events, report.LastSeq)
			return nil
		}),
	}
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status ID STATUS",
		Short: "Change a campaign status (active, paused, completed, archived)",
		Args:  cobra.ExactArgs(2),
		RunE: withService(func(cmd *cobra.Command, svc *app.Service, args []string) error {
			status, err := campaign.ParseStatus(args[1])
			if err != nil {
				return err
			}
			rec, err := svc.SetCampaignStatus(cmd.Context(), args[0], status)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s is now %s\n", okLabel.Sprint("✓"), rec.ID, statusLabel(rec.Status))
			return nil
		}),
	}
}

func archiveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "archive ID",
		Short: "Archive a campaign, exporting its log when an archive sink is configured",
		Args:  cobra.ExactArgs(1),
		RunE: withService(func(cmd *cobra.Command, svc *app.Service, args []string) error {
			res, err := svc.ArchiveCampaign(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s %s is now %s\n", okLabel.Sprint("✓"), res.Campaign.ID, statusLabel(res.Campaign.Status))
			if res.Export != nil {
				fmt.Fprintf(out, "  Exported %d events to %s\n", res.Export.Events, res.Export.Key)
			}
			return nil
		}),
	}
}

func parseStatuses(values []string) ([]campaign.Status, error) {
	statuses := make([]campaign.Status, 0, len(values))
	for _, value := range values {
		status, err := campaign.ParseStatus(value)
		if err != nil {
			return nil, err
		}
		statuses = append(statuses, status)
	}
	return statuses, nil
}
