package notes

import (
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
)

// IDProvider issues identities for newly created notes.
type IDProvider interface {
	NewID() (string, error)
}

type uuidProvider struct{}

// NewUUIDProvider constructs an IDProvider that issues UUIDv7 identifiers.
func NewUUIDProvider() IDProvider {
	return &uuidProvider{}
}

func (p *uuidProvider) NewID() (string, error) {
	value, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	return value.String(), nil
}

type timestampProvider struct {
	mu    sync.Mutex
	clock func() time.Time
	last  int64
}

// NewTimestampIDProvider issues wall-clock millisecond identifiers. When the
// clock has not advanced since the previous id it hands out last+1, so ids
// from one provider never repeat.
func NewTimestampIDProvider(clock func() time.Time) IDProvider {
	if clock == nil {
		clock = time.Now
	}
	return &timestampProvider{clock: clock}
}

func (p *timestampProvider) NewID() (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	millis := p.clock().UnixMilli()
	if millis <= p.last {
		millis = p.last + 1
	}
	p.last = millis
	return strconv.FormatInt(millis, 10), nil
}
