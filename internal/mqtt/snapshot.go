package mqtt

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/berfenger/bmsgateway/internal/config"
	"github.com/berfenger/bmsgateway/internal/core/domain"
	"github.com/berfenger/bmsgateway/internal/core/port"
	"github.com/fxamacker/cbor/v2"
)

// Encoder serializes telemetry payloads.
type Encoder func(v any) ([]byte, error)

func NewEncoder(format string) (Encoder, error) {
	switch format {
	case config.PAYLOAD_FORMAT_JSON, "":
		return json.Marshal, nil
	case config.PAYLOAD_FORMAT_CBOR:
		mode, err := cbor.CoreDetEncOptions().EncMode()
		if err != nil {
			return nil, err
		}
		return mode.Marshal, nil
	}
	return nil, fmt.Errorf("unknown payload format %q", format)
}

// SnapshotPublisher forwards storage snapshots to the broker: the whole
// snapshot on the storage topic and each pack on its own topic.
type SnapshotPublisher struct {
	client *MQTTClient
	encode Encoder
}

func NewSnapshotPublisher(client *MQTTClient, encode Encoder) *SnapshotPublisher {
	return &SnapshotPublisher{client: client, encode: encode}
}

func (p *SnapshotPublisher) Publish(ctx context.Context, snapshot domain.StorageSnapshot) error {
	payload, err := p.encode(snapshot)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if err := p.client.PublishWait(ctx, p.client.StorageStateTopic(), payload, 0, true); err != nil {
		return err
	}
	for i, pack := range snapshot.Packs {
		if i >= len(snapshot.Units) {
			break
		}
		payload, err := p.encode(pack)
		if err != nil {
			return fmt.Errorf("encode pack %s: %w", snapshot.Units[i], err)
		}
		if err := p.client.PublishWait(ctx, p.client.PackStateTopic(snapshot.Units[i]), payload, 0, true); err != nil {
			return err
		}
	}
	return nil
}

var _ port.TelemetrySink = (*SnapshotPublisher)(nil)
