package messaging

import (
	"context"
	"errors"
	"sync"
)

// ErrMockDelivery is returned by MockSender for recipients marked to fail.
var ErrMockDelivery = errors.New("mock delivery failure")

// Delivery is one recorded send.
type Delivery struct {
	To       string
	Messages []Message
}

// MockSender records every send and can be told to fail for given addresses.
// It is safe for concurrent use.
type MockSender struct {
	mu       sync.Mutex
	replies  []Delivery
	pushes   []Delivery
	failFor  map[string]bool
	failAll  bool
	profiles map[string]Profile
}

// Compile-time check that MockSender implements Service.
var _ Service = (*MockSender)(nil)

// NewMockSender creates an empty MockSender.
func NewMockSender() *MockSender {
	return &MockSender{failFor: map[string]bool{}, profiles: map[string]Profile{}}
}

// FailFor makes sends to the given reply tokens or user ids fail.
func (m *MockSender) FailFor(addrs ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range addrs {
		m.failFor[a] = true
	}
}

// FailAll makes every send fail.
func (m *MockSender) FailAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failAll = true
}

// SetProfile registers a profile returned by Profile.
func (m *MockSender) SetProfile(p Profile) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.profiles[p.UserID] = p
}

func (m *MockSender) Reply(ctx context.Context, replyToken string, msgs ...Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failAll || m.failFor[replyToken] {
		return ErrMockDelivery
	}
	m.replies = append(m.replies, Delivery{To: replyToken, Messages: msgs})
	return nil
}

func (m *MockSender) Push(ctx context.Context, to string, msgs ...Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failAll || m.failFor[to] {
		return ErrMockDelivery
	}
	m.pushes = append(m.pushes, Delivery{To: to, Messages: msgs})
	return nil
}

func (m *MockSender) Profile(ctx context.Context, userID string) (Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.profiles[userID]; ok {
		return p, nil
	}
	return Profile{UserID: userID}, nil
}

// Replies returns a copy of the recorded replies.
func (m *MockSender) Replies() []Delivery {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Delivery(nil), m.replies...)
}

// Pushes returns a copy of the recorded pushes.
func (m *MockSender) Pushes() []Delivery {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Delivery(nil), m.pushes...)
}
