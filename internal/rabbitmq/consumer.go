package rabbitmq

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/streadway/amqp"

	"github.com/magabrotheeeer/vortextv/internal/lib/sl"
)

// Handler обрабатывает тело сообщения. Ошибка возвращает сообщение в очередь.
type Handler func(ctx context.Context, body []byte) error

// Consume запускает чтение очереди. Одновременно обрабатывается не более prefetch
// сообщений. Успешные подтверждаются, неуспешные возвращаются в очередь.
func Consume(ctx context.Context, log *slog.Logger, ch *amqp.Channel, queueName string, handler Handler) error {
	const op = "rabbitmq.Consume"
	deliveries, err := ch.Consume(queueName, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	go dispatch(ctx, log.With(slog.String("queue", queueName)), deliveries, handler)
	return nil
}

// Acknowledger часть amqp.Delivery для подтверждения.
type Acknowledger interface {
	Ack(multiple bool) error
	Nack(multiple, requeue bool) error
}

func dispatch(ctx context.Context, log *slog.Logger, deliveries <-chan amqp.Delivery, handler Handler) {
	sem := make(chan struct{}, prefetch)
	for {
		select {
		case d, ok := <-deliveries:
			if !ok {
				return
			}
			// при заполненном пуле ждем слот, но не дольше жизни ctx;
			// неподтвержденное сообщение брокер доставит повторно
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				return
			}
			go func(d amqp.Delivery) {
				defer func() { <-sem }()
				handle(ctx, log, &d, d.Body, handler)
			}(d)
		case <-ctx.Done():
			return
		}
	}
}

func handle(ctx context.Context, log *slog.Logger, ack Acknowledger, body []byte, handler Handler) {
	if err := handler(ctx, body); err != nil {
		log.Error("message handling failed, requeue", sl.Err(err))
		if nackErr := ack.Nack(false, true); nackErr != nil {
			log.Error("failed to nack message", sl.Err(nackErr))
		}
		return
	}
	if err := ack.Ack(false); err != nil {
		log.Error("failed to ack message", sl.Err(err))
	}
}
