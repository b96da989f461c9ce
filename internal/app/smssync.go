package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang-smssync-gateway/internal/config"
	"golang-smssync-gateway/internal/domain"
	"golang-smssync-gateway/internal/metrics"
	"golang-smssync-gateway/internal/ports"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// InboundSMS is an SMS the device received and posts to the server.
type InboundSMS struct {
	From          string `json:"from" form:"from"`
	SentTo        string `json:"sent_to" form:"sent_to"`
	Message       string `json:"message" form:"message"`
	Hash          string `json:"hash" form:"hash"`
	MessageID     string `json:"message_id" form:"message_id"`
	DeviceID      string `json:"device_id" form:"device_id"`
	SentTimestamp string `json:"sent_timestamp" form:"sent_timestamp"`
}

// DeliveryReport is the device's report for one correlation id. Only UUID
// is used for the state transition; result codes are logged.
type DeliveryReport struct {
	UUID                   string `json:"uuid"`
	SentResultCode         *int   `json:"sent_result_code,omitempty"`
	SentResultMessage      string `json:"sent_result_message,omitempty"`
	DeliveredResultCode    *int   `json:"delivered_result_code,omitempty"`
	DeliveredResultMessage string `json:"delivered_result_message,omitempty"`
}

// States a message may be acknowledged or reported from. A delivered message
// is never moved back to queued, and inbound messages are never touched.
var (
	ackableStates    = []domain.State{domain.StateUnknown, domain.StateSent, domain.StateQueued}
	reportableStates = []domain.State{domain.StateUnknown, domain.StateSent, domain.StateQueued, domain.StateDelivered}
)

// SyncService implements the device synchronization protocol: receive,
// send, sent, queued (waiting delivery report) and delivered.
type SyncService struct {
	store ports.MessageStore
	queue ports.JobQueue
	opts  config.Options
	log   *slog.Logger
}

// NewSyncService wires the protocol handler. queue may be nil, in which case
// inbound notifications are skipped.
func NewSyncService(store ports.MessageStore, queue ports.JobQueue, opts config.Options, log *slog.Logger) *SyncService {
	return &SyncService{
		store: store,
		queue: queue,
		opts:  opts.WithDefaults(),
		log:   log,
	}
}

// OnReceive stores an inbound SMS once per hash and returns the auto-reply
// envelope for the sender together with the stored message.
func (s *SyncService) OnReceive(ctx context.Context, sms InboundSMS) (domain.Envelope, domain.Message, error) {
	msg, created, err := s.upsertInbound(ctx, sms)
	if err != nil {
		metrics.Received.WithLabelValues("error").Inc()
		return domain.Envelope{}, domain.Message{}, err
	}
	if created {
		metrics.Received.WithLabelValues("created").Inc()
	} else {
		metrics.Received.WithLabelValues("duplicate").Inc()
	}

	sender := sms.From
	if sender == "" {
		sender = s.opts.From
	}
	reply := domain.Envelope{
		To:      sender,
		Message: s.opts.Reply,
		UUID:    domain.EncodeUUID(msg.ID, sender),
	}

	if s.opts.ReceiveQueue != "" && s.queue != nil {
		if err := s.queue.Enqueue(ctx, s.opts.ReceiveQueue, msg); err != nil {
			metrics.Enqueued.WithLabelValues(s.opts.ReceiveQueue, "error").Inc()
			return domain.Envelope{}, domain.Message{}, queueErr("enqueue", s.opts.ReceiveQueue, err)
		}
		metrics.Enqueued.WithLabelValues(s.opts.ReceiveQueue, "ok").Inc()
	}

	s.log.Info("inbound sms received",
		"msg_id", msg.ID,
		"from", msg.From,
		"created", created,
		"device_id", sms.DeviceID,
	)
	return reply, msg, nil
}

func (s *SyncService) upsertInbound(ctx context.Context, sms InboundSMS) (domain.Message, bool, error) {
	existing, err := s.store.FindByHash(ctx, sms.Hash)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, domain.ErrMessageNotFound) {
		return domain.Message{}, false, storeErr("find by hash", err)
	}

	msg := s.newInbound(sms)
	if err := s.store.Create(ctx, &msg); err != nil {
		if !errors.Is(err, domain.ErrDuplicateHash) {
			return domain.Message{}, false, storeErr("create", err)
		}
		// A concurrent poll stored the same SMS first.
		existing, err := s.store.FindByHash(ctx, sms.Hash)
		if err != nil {
			return domain.Message{}, false, storeErr("find by hash", err)
		}
		return existing, false, nil
	}
	return msg, true, nil
}

func (s *SyncService) newInbound(sms InboundSMS) domain.Message {
	from := sms.From
	if from == "" {
		from = s.opts.From
	}
	to := sms.SentTo
	if to == "" {
		to = s.opts.To
	}
	msg := domain.NewInboundMessage(from, to, sms.Message, sms.Hash)
	msg.Transport = s.opts.Transport
	msg.QueueName = s.opts.QueueName
	return msg
}

// OnSend lists one envelope per recipient for every outbound SMS of this
// transport that no device has acknowledged yet. It does not change state,
// so an unacknowledged message is offered again on the next poll.
func (s *SyncService) OnSend(ctx context.Context) ([]domain.Envelope, error) {
	msgs, err := s.store.Find(ctx, domain.MessageFilter{
		Type:      domain.TypeSMS,
		Transport: s.opts.Transport,
		States:    []domain.State{domain.StateUnknown},
	})
	if err != nil {
		return nil, storeErr("find unsent", err)
	}

	envelopes := make([]domain.Envelope, 0, len(msgs))
	for _, m := range msgs {
		envelopes = append(envelopes, m.Envelopes()...)
	}
	metrics.EnvelopesOffered.Add(float64(len(envelopes)))
	return envelopes, nil
}

// OnSent marks the messages behind the acknowledged correlation ids as queued
// on the device and returns the correlation ids of every updated message,
// computed from its current recipients.
func (s *SyncService) OnSent(ctx context.Context, uuids []string) ([]string, error) {
	ids := s.decode("sent", uuids)

	msgs, err := s.transition(ctx, ids, ackableStates, domain.StateQueued)
	if err != nil {
		return nil, err
	}

	out := make([]string, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.CorrelationUUIDs()...)
	}
	return out, nil
}

// OnQueued returns the correlation ids of messages waiting for a delivery report.
func (s *SyncService) OnQueued(ctx context.Context) ([]string, error) {
	msgs, err := s.store.Find(ctx, domain.MessageFilter{
		Type:      domain.TypeSMS,
		Transport: s.opts.Transport,
		States:    []domain.State{domain.StateQueued},
	})
	if err != nil {
		return nil, storeErr("find queued", err)
	}

	out := make([]string, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.CorrelationUUIDs()...)
	}
	return out, nil
}

// OnDelivered marks reported messages as delivered and returns them.
func (s *SyncService) OnDelivered(ctx context.Context, reports []DeliveryReport) ([]domain.Message, error) {
	uuids := make([]string, 0, len(reports))
	for _, r := range reports {
		uuids = append(uuids, r.UUID)
		if r.DeliveredResultCode != nil && *r.DeliveredResultCode != 0 {
			s.log.Warn("device reported delivery failure",
				"uuid", r.UUID,
				"code", *r.DeliveredResultCode,
				"message", r.DeliveredResultMessage,
			)
		}
	}
	ids := s.decode("result", uuids)

	return s.transition(ctx, ids, reportableStates, domain.StateDelivered)
}

func (s *SyncService) decode(task string, uuids []string) []uuid.UUID {
	for _, u := range uuids {
		if _, ok := domain.DecodeUUID(u); !ok {
			metrics.DroppedUUIDs.WithLabelValues(task).Inc()
			s.log.Debug("dropping malformed correlation id", "task", task, "uuid", u)
		}
	}
	return domain.DecodeUUIDs(uuids)
}

// transition moves every matching message to state. Saves run concurrently
// and are all awaited; any failure fails the whole batch.
func (s *SyncService) transition(ctx context.Context, ids []uuid.UUID, from []domain.State, to domain.State) ([]domain.Message, error) {
	if len(ids) == 0 {
		return []domain.Message{}, nil
	}

	msgs, err := s.store.Find(ctx, domain.MessageFilter{
		Type:      domain.TypeSMS,
		Transport: s.opts.Transport,
		Direction: domain.DirectionOutbound,
		States:    from,
		IDs:       ids,
	})
	if err != nil {
		return nil, storeErr("find by ids", err)
	}

	var g errgroup.Group
	for i := range msgs {
		if msgs[i].State == to {
			continue
		}
		msgs[i].State = to
		m := &msgs[i]
		g.Go(func() error {
			if err := s.store.Save(ctx, m); err != nil {
				return storeErr("save", fmt.Errorf("message %s: %w", m.ID, err))
			}
			metrics.Transitions.WithLabelValues(string(to)).Inc()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if msgs == nil {
		msgs = []domain.Message{}
	}
	s.log.Info("messages transitioned", "state", to, "requested", len(ids), "updated", len(msgs))
	return msgs, nil
}
