// Package notifications publishes request lifecycle events into Redis
// channels for the chat gateway to deliver.
package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"forgegate/internal/middleware"
	"forgegate/internal/models"

	"github.com/redis/go-redis/v9"
)

const (
	userChannelPrefix = "notify:user:"
	adminAuditChannel = "notify:admin:audit"
)

// Credentials is the panel login material handed to the requester when
// their instance comes up. It travels only in the pub/sub payload and
// is never written to the database.
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// RequestEvent is the payload published whenever a request reaches a
// state worth telling someone about.
type RequestEvent struct {
	Type        string               `json:"type"`
	RequestID   uint                 `json:"request_id"`
	PublicRef   string               `json:"public_ref"`
	RequesterID string               `json:"requester_id"`
	GameName    string               `json:"game_name"`
	Status      models.RequestStatus `json:"status"`
	Reason      string               `json:"reason,omitempty"`
	AdminID     string               `json:"admin_id,omitempty"`
	Credentials *Credentials         `json:"credentials,omitempty"`
	OccurredAt  time.Time            `json:"occurred_at"`
}

// Notifier provides helpers to publish lifecycle events into Redis channels.
// Delivery is best effort: a publish failure is logged and counted but
// never fails the operation that triggered it.
type Notifier struct {
	rdb    *redis.Client
	logger *slog.Logger
}

// NewNotifier creates a Notifier using the provided Redis client. A nil
// client disables publishing.
func NewNotifier(rdb *redis.Client) *Notifier {
	return &Notifier{
		rdb:    rdb,
		logger: middleware.Logger.With(slog.String("component", "notifier")),
	}
}

// NotifyRequester tells the requester what happened to their request.
func (n *Notifier) NotifyRequester(ctx context.Context, req *models.Request, eventType, reason string) {
	event := RequestEvent{
		Type:        eventType,
		RequestID:   req.ID,
		PublicRef:   req.PublicRef,
		RequesterID: req.RequesterID,
		GameName:    req.GameName,
		Status:      req.Status,
		Reason:      reason,
		AdminID:     derefAdmin(req.AdminID),
		OccurredAt:  time.Now().UTC(),
	}
	n.publish(ctx, userChannelPrefix+req.RequesterID, event)
}

// NotifyProvisioned tells the requester their instance is up and hands
// over the login credentials. creds is nil when the requester already
// held a panel account; the gateway then points them at their existing
// login.
func (n *Notifier) NotifyProvisioned(ctx context.Context, req *models.Request, creds *Credentials) {
	event := RequestEvent{
		Type:        "request.completed",
		RequestID:   req.ID,
		PublicRef:   req.PublicRef,
		RequesterID: req.RequesterID,
		GameName:    req.GameName,
		Status:      req.Status,
		AdminID:     derefAdmin(req.AdminID),
		Credentials: creds,
		OccurredAt:  time.Now().UTC(),
	}
	n.publish(ctx, userChannelPrefix+req.RequesterID, event)
}

// NotifyAdmins publishes an audit event to the shared admin channel.
func (n *Notifier) NotifyAdmins(ctx context.Context, req *models.Request, eventType, reason string) {
	event := RequestEvent{
		Type:        eventType,
		RequestID:   req.ID,
		PublicRef:   req.PublicRef,
		RequesterID: req.RequesterID,
		GameName:    req.GameName,
		Status:      req.Status,
		Reason:      reason,
		AdminID:     derefAdmin(req.AdminID),
		OccurredAt:  time.Now().UTC(),
	}
	n.publish(ctx, adminAuditChannel, event)
}

func (n *Notifier) publish(ctx context.Context, channel string, event RequestEvent) {
	if n.rdb == nil {
		return
	}
	payload, err := json.Marshal(event)
	if err != nil {
		middleware.NotificationFailures.Inc()
		n.logger.ErrorContext(ctx, "marshal notification", slog.String("error", err.Error()))
		return
	}
	if err := n.rdb.Publish(ctx, channel, string(payload)).Err(); err != nil {
		middleware.NotificationFailures.Inc()
		n.logger.ErrorContext(ctx, "publish notification failed",
			slog.String("channel", channel),
			slog.String("type", event.Type),
			slog.String("error", err.Error()))
	}
}

// StartSubscriber subscribes to all user channels and the admin audit
// channel and calls onMessage for each incoming event. The chat gateway
// uses this to deliver messages.
func (n *Notifier) StartSubscriber(
	ctx context.Context, onMessage func(channel string, event RequestEvent),
) error {
	if n.rdb == nil {
		return nil
	}
	sub := n.rdb.PSubscribe(ctx, userChannelPrefix+"*", adminAuditChannel)
	ch := sub.Channel()

	go func() {
		defer func() { _ = sub.Close() }()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				func() {
					defer func() {
						if r := recover(); r != nil {
							n.logger.Error(fmt.Sprintf("panic in subscriber: %v\n%s", r, debug.Stack()))
						}
					}()
					var event RequestEvent
					if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
						n.logger.Warn("drop malformed notification",
							slog.String("channel", msg.Channel),
							slog.String("error", err.Error()))
						return
					}
					onMessage(msg.Channel, event)
				}()
			}
		}
	}()

	return nil
}

func derefAdmin(adminID *string) string {
	if adminID == nil {
		return ""
	}
	return *adminID
}
