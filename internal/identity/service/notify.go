package service

import (
	"context"
	"log/slog"

	"github.com/taskhive/identity/internal/identity/domain"
)

// User lifecycle event kinds published to the event sink.
const (
	EventUserRegistered  = "user.registered"
	EventUserLoggedIn    = "user.logged_in"
	EventUserSocialLogin = "user.social_login"
)

// UserEvent is a user-lifecycle event for downstream consumers.
type UserEvent struct {
	Kind     string
	UserID   string
	Email    string
	Provider string
}

// Notifier delivers user-facing notifications (welcome mail and the like).
// Calls are fire-and-forget: a delivery failure must never abort the
// authentication flow that triggered it.
type Notifier interface {
	UserRegistered(ctx context.Context, user domain.User) error
}

// EventSink receives user-lifecycle events. Same fire-and-forget contract
// as Notifier.
type EventSink interface {
	Publish(ctx context.Context, event UserEvent) error
}

// LogNotifier is the default Notifier: it records the notification in the
// service log. Deployments with a real mail pipeline swap this out.
type LogNotifier struct {
	Logger *slog.Logger
}

func (n *LogNotifier) UserRegistered(_ context.Context, user domain.User) error {
	n.Logger.Info("welcome notification", "user_id", user.ID, "email", user.Email)
	return nil
}

// LogEventSink is the default EventSink, logging events instead of
// publishing them to a broker.
type LogEventSink struct {
	Logger *slog.Logger
}

func (s *LogEventSink) Publish(_ context.Context, event UserEvent) error {
	s.Logger.Info("user event",
		"kind", event.Kind,
		"user_id", event.UserID,
		"provider", event.Provider,
	)
	return nil
}
