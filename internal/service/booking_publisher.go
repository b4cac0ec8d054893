// Package service holds what happens to a booking after the seats are
// committed: it is stored in MySQL and announced on RabbitMQ.
package service

import (
    "context"
    "encoding/json"
    "log"
    "time"

    amqp "github.com/rabbitmq/amqp091-go"

    "github.com/iliyamo/cinema-seat-sync/internal/queue"
)

// BookingPublisher sends booking.confirmed messages, one connection per
// publish.
type BookingPublisher struct {
    URL string
}

// Publish sends ev to the booking.confirmed queue as a persistent message.
// Errors are logged and returned so the caller can choose to ignore them.
func (p *BookingPublisher) Publish(ctx context.Context, ev queue.BookingConfirmedEvent) error {
    conn, err := amqp.Dial(p.URL)
    if err != nil {
        log.Printf("rabbitmq: dial failed: %v", err)
        return err
    }
    defer func() { _ = conn.Close() }()

    ch, err := conn.Channel()
    if err != nil {
        log.Printf("rabbitmq: channel open failed: %v", err)
        return err
    }
    defer func() { _ = ch.Close() }()

    // Idempotent. Durable so messages survive broker restarts.
    if _, err := ch.QueueDeclare(
        queue.BookingQueue, // name
        true,               // durable
        false,              // autoDelete
        false,              // exclusive
        false,              // noWait
        nil,                // args
    ); err != nil {
        log.Printf("rabbitmq: queue declare failed: %v", err)
        return err
    }

    body, err := json.Marshal(ev)
    if err != nil {
        return err
    }
    pub := amqp.Publishing{
        ContentType:  "application/json",
        DeliveryMode: amqp.Persistent,
        MessageId:    ev.BookingID,
        Timestamp:    time.Now().UTC(),
        Body:         body,
    }
    if err := ch.PublishWithContext(ctx, "", queue.BookingQueue, false, false, pub); err != nil {
        log.Printf("rabbitmq: publish failed: %v", err)
        return err
    }
    return nil
}
