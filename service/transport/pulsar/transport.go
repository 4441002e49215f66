// Copyright (c) 2023 xCherryIO Organization
// SPDX-License-Identifier: Apache-2.0

// Package pulsar serves the call, inspect and sync operations over Pulsar topics.
// Requests are consumed from the request topic with a shared subscription and
// each response is produced on the response topic under the request's correlation id.
package pulsar

import (
	"context"
	"net/http"
	"sync"

	apachepulsar "github.com/apache/pulsar-client-go/pulsar"
	"go.uber.org/multierr"

	"github.com/xcherryio/durable/common/errs"
	"github.com/xcherryio/durable/common/log"
	"github.com/xcherryio/durable/common/log/tag"
	"github.com/xcherryio/durable/common/uuid"
	"github.com/xcherryio/durable/config"
	"github.com/xcherryio/durable/service/api"
)

type pulsarTransport struct {
	rootCtx  context.Context
	cfg      config.PulsarConfig
	svc      api.Service
	logger   log.Logger
	client   apachepulsar.Client
	consumer apachepulsar.Consumer
	producer apachepulsar.Producer
	stopCh   chan struct{}
	doneCh   chan struct{}
	stopOnce sync.Once
}

func NewPulsarTransport(rootCtx context.Context, cfg config.PulsarConfig, svc api.Service, logger log.Logger) api.Server {
	return &pulsarTransport{
		rootCtx: rootCtx,
		cfg:     cfg,
		svc:     svc,
		logger:  logger.WithTags(tag.Service("pulsar-transport")),
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
}

func (p *pulsarTransport) Start() error {
	client, err := apachepulsar.NewClient(apachepulsar.ClientOptions{
		URL:              p.cfg.URL,
		OperationTimeout: p.cfg.OperationTimeout,
	})
	if err != nil {
		return err
	}
	consumer, err := client.Subscribe(apachepulsar.ConsumerOptions{
		Topic:            p.cfg.RequestTopic,
		SubscriptionName: p.cfg.SubscriptionName,
		Type:             apachepulsar.Shared,
	})
	if err != nil {
		client.Close()
		return err
	}
	producer, err := client.CreateProducer(apachepulsar.ProducerOptions{
		Topic: p.cfg.ResponseTopic,
	})
	if err != nil {
		consumer.Close()
		client.Close()
		return err
	}
	p.client = client
	p.consumer = consumer
	p.producer = producer

	go p.processMessages(consumer.Chan(), p.handleMessage)
	p.logger.Info("pulsar transport started", tag.Topic(p.cfg.RequestTopic), tag.Count(p.cfg.Concurrency))
	return nil
}

func (p *pulsarTransport) Stop(ctx context.Context) error {
	var err error
	p.stopOnce.Do(func() {
		close(p.stopCh)
		select {
		case <-p.doneCh:
		case <-ctx.Done():
			err = multierr.Append(err, ctx.Err())
		}
		if p.producer != nil {
			err = multierr.Append(err, p.producer.Flush())
			p.producer.Close()
		}
		if p.consumer != nil {
			p.consumer.Close()
		}
		if p.client != nil {
			p.client.Close()
		}
	})
	return err
}

// processMessages runs handle on cfg.Concurrency goroutines until stopped or
// until the message channel is closed
func (p *pulsarTransport) processMessages(
	msgCh <-chan apachepulsar.ConsumerMessage, handle func(msg apachepulsar.ConsumerMessage),
) {
	defer close(p.doneCh)
	concurrency := p.cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}

	var wg sync.WaitGroup
	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case msg, ok := <-msgCh:
					if !ok {
						return
					}
					handle(msg)
				case <-p.stopCh:
					return
				}
			}
		}()
	}
	wg.Wait()
	p.logger.Info("message processors are closed")
}

func (p *pulsarTransport) handleMessage(msg apachepulsar.ConsumerMessage) {
	correlationId := msg.Properties()[PropertyCorrelationId]
	if correlationId == "" {
		correlationId = msg.Key()
	}
	if correlationId == "" {
		correlationId = uuid.MustNewUUID()
	}
	logger := p.logger.WithTags(tag.ID(correlationId))

	response := handleRequest(p.rootCtx, p.svc, msg.Payload(), msg.Properties())

	ctx, cancel := context.WithTimeout(p.rootCtx, p.cfg.OperationTimeout)
	defer cancel()
	if _, err := p.producer.Send(ctx, NewResponseMessage(correlationId, response)); err != nil {
		// redelivered to another instance; the engine replays the same invocation
		logger.Error("failed to produce the response", tag.Error(err))
		p.consumer.Nack(msg)
		return
	}
	if err := p.consumer.Ack(msg); err != nil {
		logger.Error("failed to ack the message after processing", tag.Error(err), tag.ID(msg.ID().String()))
	}
}

// handleRequest routes one request message to the service. A message that cannot be
// decoded is answered with a body_invalid error rather than redelivered.
func handleRequest(ctx context.Context, svc api.Service, payload []byte, props map[string]string) api.CommResponse {
	op, request, err := RequestFromMessage(payload, props)
	if err != nil {
		errResp := api.NewErrorWithStatus(http.StatusBadRequest, errs.CodeBodyInvalid, err.Error())
		return errResp.Response()
	}
	switch op {
	case OperationInspect:
		return svc.Inspect(ctx, request)
	case OperationSync:
		return svc.Sync(ctx, request)
	default:
		return svc.Call(ctx, request)
	}
}
