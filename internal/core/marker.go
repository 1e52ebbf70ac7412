package core

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// EnsureMarker resolves the examined marker, creating it hidden if absent.
// It is called once per process start; an error must abort startup since
// without the marker every cycle would rediscover the same messages.
func EnsureMarker(ctx context.Context, mailbox Mailbox, name string, logger *zap.Logger) (Marker, error) {
	if name == "" {
		return Marker{}, errors.New("marker label name is empty")
	}

	id, err := mailbox.ResolveOrCreateLabel(ctx, name, LabelOptions{HiddenFromUser: true})
	if err != nil {
		return Marker{}, fmt.Errorf("failed to resolve marker label %q: %w", name, err)
	}
	if id == "" {
		return Marker{}, fmt.Errorf("mailbox returned an empty identifier for label %q", name)
	}

	logger.Info("Resolved marker label",
		zap.String("label", name),
		zap.String("label_id", string(id)))

	return Marker{Name: name, ID: id}, nil
}
