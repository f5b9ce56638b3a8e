package engine

import (
	"context"
	"log"
)

// SweepExpiredBids expires every pending bid whose window has closed. It is
// idempotent and safe to run from several places at once.
func (s *Service) SweepExpiredBids(ctx context.Context) (int64, error) {
	n, err := expireStale(s.db.WithContext(ctx), s.now())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		log.Printf("[sweep] Expired %d bids\n", n)
	}
	return n, nil
}
