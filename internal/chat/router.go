package chat

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"peer-chat-app/backend/pkg/errors"
	"peer-chat-app/backend/pkg/logger"
	"peer-chat-app/backend/shared/observability"
)

// SendRequest is a raw outgoing message before validation. CreatedAt is
// client display metadata only; the server clock is authoritative for
// ordering, so the stored timestamp is assigned at append.
type SendRequest struct {
	Sender      ParticipantID
	Recipient   ParticipantID
	Text        string
	ClientMsgID string
	CreatedAt   time.Time
}

// Router accepts outgoing messages, appends them to the history store and
// fans them out to the live sessions of the conversation's participants.
type Router struct {
	registry *Registry
	history  HistoryStore
	log      *logger.Logger
	metrics  *observability.ChatMetrics
	now      func() time.Time
}

// NewRouter creates a message router. metrics may be nil.
func NewRouter(registry *Registry, history HistoryStore, log *logger.Logger, metrics *observability.ChatMetrics) *Router {
	return &Router{
		registry: registry,
		history:  history,
		log:      log,
		metrics:  metrics,
		now:      time.Now,
	}
}

// Route validates the request, resolves its conversation, appends the message
// and attempts delivery to the pair's live sessions. The returned ack reports
// persistence: a validation or store failure yields a failure ack and mutates
// nothing; delivery failures are logged and never fail the ack.
func (r *Router) Route(ctx context.Context, req SendRequest) Ack {
	msg, err := r.buildMessage(req)
	if err != nil {
		if r.metrics != nil {
			r.metrics.RoutingRejected.Inc()
		}
		return Ack{
			Status:      AckFailure,
			Reason:      errors.GetErrorCode(err),
			ClientMsgID: req.ClientMsgID,
		}
	}

	seq, err := r.history.Append(ctx, msg.ConversationKey, msg)
	if err != nil {
		r.log.LogError(err, "history append failed",
			"conversation_key", string(msg.ConversationKey),
			"sender", string(msg.Sender),
		)
		if r.metrics != nil {
			r.metrics.RoutingRejected.Inc()
		}
		return Ack{
			Status:      AckFailure,
			Reason:      errors.CodeStoreUnavailable,
			ClientMsgID: req.ClientMsgID,
		}
	}

	if r.metrics != nil {
		r.metrics.MessagesRouted.Inc()
	}

	r.fanOut(msg)

	return Ack{
		Status:      AckSuccess,
		MessageID:   msg.ID,
		Seq:         seq,
		ClientMsgID: req.ClientMsgID,
	}
}

// buildMessage validates the request and assembles the server-side message.
func (r *Router) buildMessage(req SendRequest) (*Message, error) {
	text := strings.TrimSpace(req.Text)
	if text == "" {
		return nil, errors.NewInvalidMessageError("message text must not be empty")
	}
	if req.Sender == "" || req.Recipient == "" {
		return nil, errors.NewInvalidMessageError("sender and recipient are required")
	}
	if req.Sender == req.Recipient {
		return nil, errors.NewInvalidMessageError("sender and recipient must be distinct")
	}

	key, err := ResolveKey(req.Sender, req.Recipient)
	if err != nil {
		return nil, err
	}

	return &Message{
		ID:              uuid.New().String(),
		ConversationKey: key,
		Sender:          req.Sender,
		Recipient:       req.Recipient,
		Text:            text,
		CreatedAt:       r.now().UTC(),
	}, nil
}

// fanOut delivers the message to every joined session whose bound participant
// is the sender or the recipient. Sessions registered under the key with any
// other identity are skipped: delivery is restricted to the pair itself.
func (r *Router) fanOut(msg *Message) {
	for _, s := range r.registry.MembersOf(msg.ConversationKey) {
		p := s.Participant()
		if !msg.ConversationKey.Includes(p) {
			continue
		}
		if err := s.Deliver(msg); err != nil {
			// Best-effort: the peer catches up from the backlog on its
			// next join.
			r.log.Warn("delivery failed",
				"session_id", s.SessionID(),
				"participant", string(p),
				"conversation_key", string(msg.ConversationKey),
				"error", err.Error(),
			)
			if r.metrics != nil {
				r.metrics.DeliveryFailures.Inc()
			}
			continue
		}
		if r.metrics != nil {
			r.metrics.DeliveredMessages.Inc()
		}
	}
}
