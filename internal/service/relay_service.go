package service

import (
	"context"
	"encoding/json"

	"surgical-review-be/internal/pkg/logger"
	"surgical-review-be/internal/websocket"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

// IRelayService forwards session events from the in-process bus to the
// websocket hub.
type IRelayService interface {
	Consume(ctx context.Context) error
}

type relayService struct {
	pubSub *gochannel.GoChannel
	hub    *websocket.Hub
	log    logger.ILogger
}

func NewRelayService(pubSub *gochannel.GoChannel, hub *websocket.Hub, log logger.ILogger) IRelayService {
	return &relayService{
		pubSub: pubSub,
		hub:    hub,
		log:    log,
	}
}

func (rs *relayService) Consume(ctx context.Context) error {
	messages, err := rs.pubSub.Subscribe(ctx, SessionEventsTopic)
	if err != nil {
		return err
	}

	go func() {
		for msg := range messages {
			rs.processMessage(msg)
		}
	}()

	return nil
}

func (rs *relayService) processMessage(msg *message.Message) {
	// Events are already serialized; only the routing key is needed here.
	var envelope struct {
		Data struct {
			SessionId string `json:"session_id"`
		} `json:"data"`
	}
	if err := json.Unmarshal(msg.Payload, &envelope); err != nil || envelope.Data.SessionId == "" {
		rs.log.Warn("Relay", "Dropping unroutable event", map[string]interface{}{"error": errString(err)})
		msg.Ack() // nothing to retry, the payload will not get better
		return
	}

	rs.hub.Broadcast(envelope.Data.SessionId, msg.Payload)
	msg.Ack()
}

func errString(err error) string {
	if err == nil {
		return "missing session_id"
	}
	return err.Error()
}
