package app

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/louisbranch/campaignlog/internal/services/campaign/archive"
	"github.com/louisbranch/campaignlog/internal/services/campaign/branch"
	"github.com/louisbranch/campaignlog/internal/services/campaign/domain/campaign"
	"github.com/louisbranch/campaignlog/internal/services/campaign/domain/event"
	"github.com/louisbranch/campaignlog/internal/services/campaign/domain/state"
	"github.com/louisbranch/campaignlog/internal/services/campaign/eventlog"
	"github.com/louisbranch/campaignlog/internal/services/campaign/registry"
	"github.com/louisbranch/campaignlog/internal/services/campaign/replay"
	"github.com/louisbranch/campaignlog/internal/services/campaign/sim"
	"github.com/louisbranch/campaignlog/internal/services/campaign/snapshot"
	"github.com/louisbranch/campaignlog/internal/services/campaign/storage"
)

var tracer = otel.Tracer("campaignlog.app")

// DefaultEventPage bounds ListEvents when no limit is given.
const DefaultEventPage = 100

// Service is the campaign store query surface.
type Service struct {
	store     storage.Store
	events    *eventlog.Log
	snapshots *snapshot.Manager
	replay    *replay.Engine
	registry  *registry.Registry
	branches  *branch.Manager
	exporter  *archive.Exporter
	stepper   sim.Stepper
	logger    *log.Logger
}

// StepInput is one simulation step request.
type StepInput struct {
	CampaignID string
	// Seed defaults to the campaign seed.
	Seed    string
	Actions json.RawMessage
}

// StepResult is a committed step.
type StepResult struct {
	Event event.Event
	State state.State
	// SnapshotScheduled reports whether the step hit the snapshot cadence.
	SnapshotScheduled bool
}

// ArchiveResult is an archived campaign and its export, when a sink is set.
type ArchiveResult struct {
	Campaign storage.CampaignRecord
	Export   *archive.Export
}

// Archiving reports whether ArchiveCampaign exports logs.
func (s *Service) Archiving() bool {
	return s.exporter != nil
}

// CreateCampaign registers a campaign and records its creation event.
func (s *Service) CreateCampaign(ctx context.Context, in registry.CreateInput) (rec storage.CampaignRecord, err error) {
	ctx, span := tracer.Start(ctx, "campaign.Create", trace.WithAttributes(attribute.String("campaign.name", in.Name)))
	defer func() {
		if err == nil {
			span.SetAttributes(attribute.String("campaign.id", rec.ID))
		}
		endSpan(span, err)
	}()
	return s.registry.Create(ctx, in)
}

// ListCampaigns lists campaigns, most recently active first.
func (s *Service) ListCampaigns(ctx context.Context, statuses ...campaign.Status) (records []storage.CampaignRecord, err error) {
	ctx, span := tracer.Start(ctx, "campaign.List")
	defer func() { endSpan(span, err) }()
	return s.registry.List(ctx, statuses...)
}

// GetCampaign returns one campaign record.
func (s *Service) GetCampaign(ctx context.Context, campaignID string) (rec storage.CampaignRecord, err error) {
	ctx, span := startCampaignSpan(ctx, "campaign.Get", campaignID)
	defer func() { endSpan(span, err) }()
	return s.registry.Get(ctx, campaignID)
}

// ResumeCampaign reconstructs the current state.
func (s *Service) ResumeCampaign(ctx context.Context, campaignID string) (replay.Result, error) {
	return s.ResumeCampaignWith(ctx, campaignID, replay.Options{})
}

// ResumeCampaignWith reconstructs state with replay options, e.g. the state
// as of an earlier sequence.
func (s *Service) ResumeCampaignWith(ctx context.Context, campaignID string, opts replay.Options) (res replay.Result, err error) {
	ctx, span := startCampaignSpan(ctx, "campaign.Resume", campaignID)
	defer func() {
		if err == nil {
			span.SetAttributes(
				attribute.Int64("campaign.seq", int64(res.Seq)),
				attribute.Int("replay.applied", res.Applied),
				attribute.Bool("replay.from_snapshot", res.FromSnapshot),
			)
		}
		endSpan(span, err)
	}()
	return s.replay.ResumeWith(ctx, campaignID, opts)
}

// ExecuteStep resumes the campaign, runs the stepper without holding the
// append lock, then appends the resulting state. Cadence snapshots are
// written in the background and never fail the step.
func (s *Service) ExecuteStep(ctx context.Context, in StepInput) (out StepResult, err error) {
	campaignID := strings.TrimSpace(in.CampaignID)
	ctx, span := startCampaignSpan(ctx, "campaign.ExecuteStep", campaignID)
	defer func() {
		if err == nil {
			span.SetAttributes(attribute.Int64("campaign.seq", int64(out.Event.Seq)))
		}
		endSpan(span, err)
	}()

	rec, err := s.registry.Get(ctx, campaignID)
	if err != nil {
		return StepResult{}, err
	}
	if !rec.Status.AcceptsEvents() {
		return StepResult{}, campaign.NotActive(rec.ID, rec.Status)
	}
	current, err := s.replay.Resume(ctx, rec.ID)
	if err != nil {
		return StepResult{}, err
	}

	seed := strings.TrimSpace(in.Seed)
	if seed == "" {
		seed = rec.Seed
	}
	next, err := s.stepper.Step(ctx, current.State, seed, in.Actions)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return StepResult{}, err
		}
		return StepResult{}, campaign.InvalidState(rec.ID, err)
	}
	next, err = state.Parse(next)
	if err != nil {
		return StepResult{}, campaign.InvalidState(rec.ID, err)
	}
	payload, err := event.NewSimulationStep(seed, in.Actions, next)
	if err != nil {
		return StepResult{}, campaign.InvalidState(rec.ID, err)
	}

	evt, err := s.events.Append(ctx, rec.ID, event.TypeSimulationStep, payload)
	if err != nil {
		return StepResult{}, err
	}
	out = StepResult{Event: evt, State: next}
	if s.snapshots.Due(evt.Seq) {
		s.snapshots.Schedule(ctx, rec.ID, evt.Seq, next)
		out.SnapshotScheduled = true
	}
	return out, nil
}

// BranchCampaign forks a campaign at a sequence or step.
func (s *Service) BranchCampaign(ctx context.Context, in branch.Input) (res branch.Result, err error) {
	ctx, span := startCampaignSpan(ctx, "campaign.Branch", in.ParentCampaignID)
	span.SetAttributes(attribute.String("branch.point", in.Point.String()))
	defer func() {
		if err == nil {
			span.SetAttributes(attribute.String("branch.id", res.Campaign.ID))
		}
		endSpan(span, err)
	}()
	return s.branches.Branch(ctx, in)
}

// ListBranches lists the direct branches of a campaign.
func (s *Service) ListBranches(ctx context.Context, campaignID string) (records []storage.CampaignRecord, err error) {
	ctx, span := startCampaignSpan(ctx, "campaign.ListBranches", campaignID)
	defer func() { endSpan(span, err) }()
	return s.registry.ListBranches(ctx, campaignID)
}

// SnapshotCampaign resumes the campaign and saves a snapshot at its head.
func (s *Service) SnapshotCampaign(ctx context.Context, campaignID string) (snap storage.Snapshot, err error) {
	ctx, span := startCampaignSpan(ctx, "campaign.Snapshot", campaignID)
	defer func() { endSpan(span, err) }()
	res, err := s.replay.Resume(ctx, campaignID)
	if err != nil {
		return storage.Snapshot{}, err
	}
	return s.snapshots.Save(ctx, campaignID, res.Seq, res.State)
}

// ListSnapshots lists snapshots newest first.
func (s *Service) ListSnapshots(ctx context.Context, campaignID string, limit int) (snaps []storage.Snapshot, err error) {
	ctx, span := startCampaignSpan(ctx, "campaign.ListSnapshots", campaignID)
	defer func() { endSpan(span, err) }()
	if _, err := s.registry.Get(ctx, campaignID); err != nil {
		return nil, err
	}
	return s.snapshots.List(ctx, campaignID, limit)
}

// VerifyCampaign walks the full event chain.
func (s *Service) VerifyCampaign(ctx context.Context, campaignID string) (report eventlog.Report, err error) {
	ctx, span := startCampaignSpan(ctx, "campaign.Verify", campaignID)
	defer func() { endSpan(span, err) }()
	return s.events.Verify(ctx, campaignID)
}

// SetCampaignStatus moves a campaign through its lifecycle.
func (s *Service) SetCampaignStatus(ctx context.Context, campaignID string, status campaign.Status) (rec storage.CampaignRecord, err error) {
	ctx, span := startCampaignSpan(ctx, "campaign.SetStatus", campaignID)
	span.SetAttributes(attribute.String("campaign.status", string(status)))
	defer func() { endSpan(span, err) }()
	return s.registry.SetStatus(ctx, campaignID, status)
}

// ArchiveCampaign exports the log when a sink is configured, then marks the
// campaign archived. A failed export leaves the status unchanged so the call
// can be retried. A campaign that is already archived is returned as is.
// Archiving never deletes data.
func (s *Service) ArchiveCampaign(ctx context.Context, campaignID string) (out ArchiveResult, err error) {
	ctx, span := startCampaignSpan(ctx, "campaign.Archive", campaignID)
	defer func() { endSpan(span, err) }()

	rec, err := s.registry.Get(ctx, campaignID)
	if err != nil {
		return ArchiveResult{}, err
	}
	if rec.Status == campaign.StatusArchived {
		return ArchiveResult{Campaign: rec}, nil
	}
	if !campaign.IsStatusTransitionAllowed(rec.Status, campaign.StatusArchived) {
		return ArchiveResult{}, campaign.InvalidStatusTransition(rec.ID, rec.Status, campaign.StatusArchived)
	}
	if s.exporter != nil {
		if out.Export, err = s.export(ctx, rec.ID); err != nil {
			return ArchiveResult{}, err
		}
	}
	rec, err = s.registry.SetStatus(ctx, rec.ID, campaign.StatusArchived)
	if err != nil {
		return ArchiveResult{}, err
	}
	out.Campaign = rec
	// A step committed between the export and the status change. The log is
	// frozen now, so the second export is final.
	if out.Export != nil && rec.CurrentSeq > out.Export.LastSeq {
		if out.Export, err = s.export(ctx, rec.ID); err != nil {
			return ArchiveResult{Campaign: rec}, err
		}
	}
	if out.Export != nil {
		span.SetAttributes(attribute.String("archive.key", out.Export.Key))
	}
	return out, nil
}

func (s *Service) export(ctx context.Context, campaignID string) (*archive.Export, error) {
	export, err := s.exporter.Export(ctx, campaignID)
	if err != nil {
		switch {
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			return nil, err
		case errors.Is(err, campaign.ErrNotFound), errors.Is(err, campaign.ErrStoreUnavailable):
			return nil, err
		}
		return nil, campaign.StoreUnavailable(campaignID, "archive export", err)
	}
	s.logger.Printf("campaign log exported campaign_id=%s key=%s events=%d", campaignID, export.Key, export.Events)
	return &export, nil
}

// ListEvents returns up to limit events starting at fromSeq.
func (s *Service) ListEvents(ctx context.Context, campaignID string, fromSeq uint64, limit int) (events []event.Event, err error) {
	ctx, span := startCampaignSpan(ctx, "campaign.ListEvents", campaignID)
	defer func() { endSpan(span, err) }()
	if limit <= 0 {
		limit = DefaultEventPage
	}
	for evt, err := range s.events.Events(ctx, campaignID, fromSeq) {
		if err != nil {
			return nil, err
		}
		events = append(events, evt)
		if len(events) >= limit {
			break
		}
	}
	return events, nil
}

// Wait blocks until background snapshot writes finish.
func (s *Service) Wait() {
	s.snapshots.Wait()
}

// Close drains background snapshots and closes the store.
func (s *Service) Close() error {
	if s == nil {
		return nil
	}
	s.snapshots.Wait()
	return s.store.Close()
}

func startCampaignSpan(ctx context.Context, name, campaignID string) (context.Context, trace.Span) {
	return tracer.Start(ctx, name, trace.WithAttributes(attribute.String("campaign.id", campaignID)))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
