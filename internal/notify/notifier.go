package notify

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/snarg/call-engine/internal/model"
)

// Notifier receives pipeline lifecycle events. ProcessingComplete fires
// exactly once per run, only on the transition to completed; it never
// fires for failed recordings or per partially-failed sub-step.
// HighPriorityAction fires once per high-priority action item when the
// owner has opted in.
type Notifier interface {
	ProcessingComplete(ctx context.Context, rec *model.Recording) error
	ProcessingFailed(ctx context.Context, rec *model.Recording) error
	HighPriorityAction(ctx context.Context, rec *model.Recording, item *model.ActionItem) error
}

// LogNotifier writes lifecycle events to the log. It is the default
// when no broker is configured.
type LogNotifier struct {
	Log zerolog.Logger
}

func (n *LogNotifier) ProcessingComplete(_ context.Context, rec *model.Recording) error {
	n.Log.Info().
		Str("recording_id", rec.ID.String()).
		Str("owner_id", rec.OwnerID.String()).
		Str("source_type", string(rec.SourceType)).
		Msg("processing complete")
	return nil
}

func (n *LogNotifier) ProcessingFailed(_ context.Context, rec *model.Recording) error {
	n.Log.Warn().
		Str("recording_id", rec.ID.String()).
		Str("error", rec.ProcessingError).
		Msg("processing failed")
	return nil
}

func (n *LogNotifier) HighPriorityAction(_ context.Context, rec *model.Recording, item *model.ActionItem) error {
	n.Log.Info().
		Str("recording_id", rec.ID.String()).
		Str("owner_id", rec.OwnerID.String()).
		Str("title", item.Title).
		Msg("high-priority action item")
	return nil
}
