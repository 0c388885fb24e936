package catalog

import (
	"context"
	"time"
)

// Transport issues bounded, timed GET requests.
type Transport interface {
	Get(ctx context.Context, url string, timeout time.Duration) (Response, error)
}

// Session is a cookie-scoped request context. It lives for exactly the
// requests that depend on each other and is closed afterwards.
type Session interface {
	Get(ctx context.Context, url string) (Response, error)
	Close()
}

// SessionTransport can open scoped sessions in addition to plain requests.
type SessionTransport interface {
	Transport
	NewSession() Session
}

// Sink receives the finished catalog.
type Sink interface {
	Write(ctx context.Context, cat Catalog) (Receipt, error)
}

// Publisher pushes completion events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Hasher computes digests for catalog integrity.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time and sleeps between retries.
type Clock interface {
	Now() time.Time
	Sleep(ctx context.Context, d time.Duration) error
}

// IDGenerator produces run IDs.
type IDGenerator interface {
	NewID() (string, error)
}
