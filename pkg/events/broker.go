package events

import (
	"sync"
)

// Subscriber is a channel that receives dispatch outcomes
type Subscriber chan *Outcome

// Broker fans dispatch outcomes out to subscribers
type Broker struct {
	subscribers map[Subscriber]bool
	mu          sync.RWMutex
	outcomeCh   chan *Outcome
	stopCh      chan struct{}
	stopOnce    sync.Once
}

// NewBroker creates a new outcome broker
func NewBroker() *Broker {
	return &Broker{
		subscribers: make(map[Subscriber]bool),
		outcomeCh:   make(chan *Outcome, 100), // Buffer up to 100 outcomes
		stopCh:      make(chan struct{}),
	}
}

// Start begins the broker's distribution loop
func (b *Broker) Start() {
	go b.run()
}

// Stop stops the broker
func (b *Broker) Stop() {
	b.stopOnce.Do(func() {
		close(b.stopCh)
	})
}

// Subscribe creates a new subscription and returns a channel
func (b *Broker) Subscribe() Subscriber {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := make(Subscriber, 50) // Buffer per subscriber
	b.subscribers[sub] = true
	return sub
}

// Unsubscribe removes a subscription
func (b *Broker) Unsubscribe(sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.subscribers[sub]; !ok {
		return
	}
	delete(b.subscribers, sub)
	close(sub)
}

// Publish queues an outcome for delivery. It never blocks once the broker
// is stopped.
func (b *Broker) Publish(outcome *Outcome) {
	select {
	case b.outcomeCh <- outcome:
	case <-b.stopCh:
	}
}

func (b *Broker) run() {
	for {
		select {
		case outcome := <-b.outcomeCh:
			b.broadcast(outcome)
		case <-b.stopCh:
			return
		}
	}
}

func (b *Broker) broadcast(outcome *Outcome) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for sub := range b.subscribers {
		select {
		case sub <- outcome:
		default:
			// Subscriber buffer full, skip
		}
	}
}

// SubscriberCount returns the number of active subscribers
func (b *Broker) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}
