package queue

import (
	"math/rand/v2"
	"time"
)

// maxBackoffShift caps the exponential term at about 17 minutes.
const maxBackoffShift = 10

// Backoff returns the delay before a failed job becomes claimable again:
// 2^attempts seconds plus up to one second of jitter. The jitter keeps
// retries from a burst of failures from hitting the embedding API in
// lockstep.
func Backoff(attempts int) time.Duration {
	if attempts < 1 {
		attempts = 1
	}
	if attempts > maxBackoffShift {
		attempts = maxBackoffShift
	}
	base := time.Duration(1<<uint(attempts)) * time.Second
	return base + rand.N(time.Second)
}
