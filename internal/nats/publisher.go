package natsclient

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/devghori1264/quads/internal/models"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

const DefaultSubject = "quads.events"

type Publisher struct {
	nc      *nats.Conn
	url     string
	subject string
}

func NewPublisher(url, subject string, log *zap.Logger) (*Publisher, error) {
	if subject == "" {
		subject = DefaultSubject
	}
	opts := []nats.Option{
		nats.Name("quads-api"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Warn("nats disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info("nats reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
	}
	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, err
	}
	return &Publisher{nc: nc, url: url, subject: subject}, nil
}

func (p *Publisher) Publish(ctx context.Context, subject string, payload []byte) error {
	if p.nc == nil || p.nc.IsClosed() {
		return fmt.Errorf("nats not connected")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return p.nc.Publish(subject, payload)
}

// PublishEvent sends ev as JSON on the publisher's subject, suffixed with
// the event resource: quads.events.host, quads.events.cloud, ...
func (p *Publisher) PublishEvent(ctx context.Context, ev models.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return p.Publish(ctx, p.subject+"."+ev.Resource, payload)
}

func (p *Publisher) Close() {
	if p.nc != nil {
		p.nc.Drain()
		p.nc.Close()
	}
}
