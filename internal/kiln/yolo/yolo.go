// Package yolo implements the YoloController: auto-advancing status when a
// stage's ready label and the yolo control label are both present (§4.8).
package yolo

import (
	"context"
	"log/slog"

	"github.com/agentic-metallurgy/kiln/internal/kiln/labels"
	"github.com/agentic-metallurgy/kiln/internal/ticket"
)

// Advance transitions item to nextStatus via the adapter. On failure it adds
// yolo_failed rather than retrying inline — the next poll cycle re-evaluates
// and will retry the advance normally. Yolo transitions never hold a running
// label; TriggerPolicy's rule 4 on the following cycle triggers the next
// stage's workflow through the ordinary claim path.
func Advance(ctx context.Context, adapter ticket.Adapter, log *slog.Logger, item ticket.Item, nextStatus string) {
	if log == nil {
		log = slog.Default()
	}
	log = log.With(slog.String("component", "yolo"))

	if err := adapter.SetStatus(ctx, item.Repo, item.ID, nextStatus); err != nil {
		log.Warn("yolo advance failed, marking yolo_failed",
			slog.String("repo", item.Repo), slog.Int("id", item.ID),
			slog.String("next_status", nextStatus), slog.Any("error", err))
		if labelErr := adapter.AddLabel(ctx, item.Repo, item.ID, labels.FailureYolo); labelErr != nil {
			log.Error("failed to add yolo_failed label", slog.Any("error", labelErr))
		}
		return
	}

	log.Info("yolo advanced item", slog.String("repo", item.Repo), slog.Int("id", item.ID), slog.String("next_status", nextStatus))
}
