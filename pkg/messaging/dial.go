package messaging

import (
	"context"
	"fmt"

	"github.com/cenkalti/backoff/v4"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
)

// Dial connects to the broker trying every credential candidate in order
// (primary, fallback, anonymous). The whole sequence is retried with a fixed
// delay until MaxRetries rounds have failed.
func Dial(ctx context.Context, cfg ConnectionConfig, logger logrus.FieldLogger) (*amqp.Connection, error) {
	var conn *amqp.Connection
	cred, err := connectWithFallback(ctx, cfg, logger, func(cred Credentials) error {
		c, err := amqp.Dial(cfg.URL(cred))
		if err != nil {
			return err
		}
		conn = c
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.WithField("user", cred.String()).Debug("RabbitMQ credentials accepted")
	return conn, nil
}

func connectWithFallback(ctx context.Context, cfg ConnectionConfig, logger logrus.FieldLogger, attempt func(Credentials) error) (Credentials, error) {
	candidates := cfg.Credentials
	if len(candidates) == 0 {
		candidates = []Credentials{{}}
	}
	rounds := cfg.MaxRetries
	if rounds < 1 {
		rounds = 1
	}

	var (
		accepted Credentials
		round    int
	)
	op := func() error {
		round++
		var lastErr error
		for _, cred := range candidates {
			err := attempt(cred)
			if err == nil {
				accepted = cred
				return nil
			}
			logger.WithFields(logrus.Fields{
				"user":    cred.String(),
				"attempt": round,
			}).WithError(err).Warn("RabbitMQ connection attempt failed")
			lastErr = err
		}
		return lastErr
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(cfg.RetryDelay), uint64(rounds-1)),
		ctx,
	)
	if err := backoff.Retry(op, policy); err != nil {
		return Credentials{}, fmt.Errorf("%w after %d attempts: %w", ErrBrokerUnavailable, round, err)
	}

	return accepted, nil
}
