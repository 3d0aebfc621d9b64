package events

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/Dosada05/tournament-engine/storage"
	"github.com/redis/go-redis/v9"
)

// HubPublisher pushes events to websocket clients watching the tournament.
type HubPublisher struct {
	hub *Hub
}

func NewHubPublisher(hub *Hub) *HubPublisher {
	return &HubPublisher{hub: hub}
}

func (p *HubPublisher) Name() string { return "websocket" }

func (p *HubPublisher) Publish(_ context.Context, env Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to encode event for websocket: %w", err)
	}
	p.hub.BroadcastToRoom(RoomForTournament(env.TournamentID), data)
	return nil
}

// RedisPublisher publishes events on a Redis pub/sub channel for other services.
type RedisPublisher struct {
	client  *redis.Client
	channel string
}

func NewRedisPublisher(client *redis.Client, channel string) *RedisPublisher {
	return &RedisPublisher{client: client, channel: channel}
}

func (p *RedisPublisher) Name() string { return "redis" }

func (p *RedisPublisher) Publish(ctx context.Context, env Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to encode event for redis: %w", err)
	}
	if err := p.client.Publish(ctx, p.channel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish to channel %s: %w", p.channel, err)
	}
	return nil
}

// BracketSource renders the full bracket of a tournament for archiving.
type BracketSource interface {
	BracketSnapshot(ctx context.Context, tournamentID int) (any, error)
}

// ArchivePublisher stores the final bracket in object storage once a
// tournament completes. Other events are ignored.
type ArchivePublisher struct {
	store  storage.ObjectStore
	source BracketSource
	logger *slog.Logger
}

func NewArchivePublisher(store storage.ObjectStore, source BracketSource, logger *slog.Logger) *ArchivePublisher {
	return &ArchivePublisher{store: store, source: source, logger: logger}
}

func (p *ArchivePublisher) Name() string { return "archive" }

func ArchiveKey(tournamentID int) string {
	return fmt.Sprintf("brackets/tournament_%d.json", tournamentID)
}

func (p *ArchivePublisher) Publish(ctx context.Context, env Envelope) error {
	if env.Type != TypeRoundClosed {
		return nil
	}
	var closed RoundClosed
	if err := json.Unmarshal(env.Payload, &closed); err != nil {
		return fmt.Errorf("failed to decode round_closed payload: %w", err)
	}
	if !closed.TournamentComplete {
		return nil
	}

	snapshot, err := p.source.BracketSnapshot(ctx, closed.TournamentID)
	if err != nil {
		return fmt.Errorf("failed to load bracket of tournament %d: %w", closed.TournamentID, err)
	}
	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("failed to encode bracket of tournament %d: %w", closed.TournamentID, err)
	}

	result, err := p.store.Put(ctx, ArchiveKey(closed.TournamentID), "application/json", bytes.NewReader(data))
	if err != nil {
		return err
	}
	p.logger.Info("bracket archived",
		slog.Int("tournament_id", closed.TournamentID),
		slog.String("location", result.Location),
	)
	return nil
}
