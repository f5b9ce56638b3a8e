package events

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisPublisher pushes each event on the booking's channel so open views can
// re-fetch.
type RedisPublisher struct {
	rdb *redis.Client
}

func NewRedisPublisher(rdb *redis.Client) *RedisPublisher {
	return &RedisPublisher{rdb: rdb}
}

func Channel(bookingID string) string {
	return fmt.Sprintf("bookings:%s", bookingID)
}

func (r *RedisPublisher) Publish(ctx context.Context, e Event) error {
	payload, err := e.Marshal()
	if err != nil {
		return err
	}
	return r.rdb.Publish(ctx, Channel(e.BookingID), string(payload)).Err()
}
