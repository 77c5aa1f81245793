/*
 * Copyright 2026 The FleetGlass Authors.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package events mirrors registry broadcast events to NATS JetStream as
// CloudEvents, so external consumers can follow fleet state without holding
// an admin session open.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/fleetglass/fleetglass/pkg/logger"
	"github.com/fleetglass/fleetglass/pkg/models"
)

const (
	cloudEventSource     = "fleetglass/relay"
	cloudEventTypePrefix = "io.fleetglass.device."
)

// Publisher publishes device state CloudEvents to a JetStream stream. It
// implements registry.EventSink.
type Publisher struct {
	js      jetstream.JetStream
	nc      *nats.Conn
	subject string
	logger  logger.Logger
}

// Connect dials NATS, ensures the stream exists, and returns a ready
// publisher.
func Connect(ctx context.Context, cfg *models.EventsConfig, log logger.Logger, opts ...nats.Option) (*Publisher, error) {
	nc, err := nats.Connect(cfg.NATS.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	if _, err := js.Stream(ctx, cfg.StreamName); err != nil {
		_, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
			Name:     cfg.StreamName,
			Subjects: []string{cfg.Subject},
		})
		if err != nil {
			nc.Close()
			return nil, fmt.Errorf("failed to create or get stream %s: %w", cfg.StreamName, err)
		}

		log.Info().Str("stream", cfg.StreamName).Msg("Created JetStream stream")
	}

	return &Publisher{
		js:      js,
		nc:      nc,
		subject: cfg.Subject,
		logger:  log,
	}, nil
}

// PublishDeviceEvent wraps a broadcast event in a CloudEvent envelope and
// publishes it. device_list snapshots are skipped; they are an admin
// bootstrap concern, not a fleet state change.
func (p *Publisher) PublishDeviceEvent(ctx context.Context, event *models.BroadcastEvent) error {
	if event.Type == models.EventDeviceList {
		return nil
	}

	ts := event.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	ce := models.CloudEvent{
		SpecVersion:     "1.0",
		ID:              uuid.New().String(),
		Source:          cloudEventSource,
		Type:            cloudEventTypePrefix + string(event.Type),
		DataContentType: "application/json",
		Subject:         p.subject,
		Time:            &ts,
		Data:            event,
	}

	payload, err := json.Marshal(ce)
	if err != nil {
		return fmt.Errorf("failed to marshal device event: %w", err)
	}

	ack, err := p.js.Publish(ctx, p.subject, payload)
	if err != nil {
		return fmt.Errorf("failed to publish device event: %w", err)
	}

	p.logger.Debug().
		Str("event_id", ce.ID).
		Str("event_type", ce.Type).
		Uint64("sequence", ack.Sequence).
		Msg("Published device event")

	return nil
}

// Close shuts down the NATS connection.
func (p *Publisher) Close() {
	if p.nc != nil {
		p.nc.Close()
	}
}
