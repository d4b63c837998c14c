package gateway

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/ruteri/encrypted-name-registry/encryption"
)

// Load waits until the gateway answers and then publishes client into slot.
// It retries with exponential backoff until ctx ends.
func Load(ctx context.Context, client *Client, slot *encryption.Slot) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 250 * time.Millisecond
	b.MaxInterval = 10 * time.Second
	b.MaxElapsedTime = 0

	err := backoff.RetryNotify(func() error {
		return client.Ping(ctx)
	}, backoff.WithContext(b, ctx), func(err error, wait time.Duration) {
		client.log.Warn("Encryption gateway not reachable yet", "err", err, "retryIn", wait)
	})
	if err != nil {
		return err
	}

	slot.Publish(client)
	client.log.Info("Encryption gateway loaded", "url", client.baseURL)
	return nil
}
