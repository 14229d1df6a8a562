package notify

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
)

const (
	reconnectBaseDelay = time.Second
	reconnectMaxDelay  = 30 * time.Second
)

// PGBridge listens on a Postgres NOTIFY channel over a dedicated pgx
// connection and fans the notifications out to local subscribers. The
// images-table trigger installed by the migration publishes the owner id as
// the notification payload, which is all the filter needs.
type PGBridge struct {
	*registry
	dsn     string
	channel string
	log     zerolog.Logger
}

var _ Bridge = (*PGBridge)(nil)

// NewPGBridge creates a bridge for the given connection string and channel.
// Run must be started for signals to flow.
func NewPGBridge(dsn, channel string, log zerolog.Logger) *PGBridge {
	return &PGBridge{
		registry: newRegistry(),
		dsn:      dsn,
		channel:  channel,
		log:      log,
	}
}

// Subscribe registers a signal stream for the filter. Registration is
// local; it succeeds even while the listener connection is down, and the
// stream starts carrying signals once Run reconnects.
func (b *PGBridge) Subscribe(f Filter) (*Subscription, error) {
	return b.subscribe(f), nil
}

// Run maintains the LISTEN connection until ctx is cancelled, reconnecting
// with capped exponential backoff. Notifications missed during an outage
// are not replayed; subscribers refetch on the next signal anyway, and the
// reconnect itself dispatches a catch-up signal to force that refetch.
func (b *PGBridge) Run(ctx context.Context) error {
	delay := reconnectBaseDelay
	first := true
	for {
		err := b.listen(ctx, !first)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		b.log.Warn().Err(err).Dur("retry_in", delay).Msg("notify listener disconnected")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
		if delay > reconnectMaxDelay {
			delay = reconnectMaxDelay
		}
		first = false
	}
}

func (b *PGBridge) listen(ctx context.Context, catchUp bool) error {
	conn, err := pgx.Connect(ctx, b.dsn)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = conn.Close(closeCtx)
	}()

	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{b.channel}.Sanitize()); err != nil {
		return err
	}
	b.log.Info().Str("channel", b.channel).Msg("notify listener attached")

	if catchUp {
		// Changes during the outage were lost; wake every subscriber once.
		b.dispatch("")
	}

	for {
		n, err := conn.WaitForNotification(ctx)
		if err != nil {
			return err
		}
		b.dispatch(n.Payload)
	}
}
