package events

import "time"

// SubscriptionStart is emitted when a subscriber enters the registry.
type SubscriptionStart struct {
	ID     string
	Active int
}

// SubscriptionEvent is emitted for every value a subscriber produces.
type SubscriptionEvent struct {
	ID     string
	Errors int
}

// SubscriptionEnd is emitted when a subscriber leaves the registry.
type SubscriptionEnd struct {
	ID       string
	Active   int
	Lifetime time.Duration
}

// WSConnect is emitted when a streaming connection is upgraded.
type WSConnect struct {
	Remote string
}

// WSDisconnect is emitted when a streaming connection ends.
type WSDisconnect struct {
	Remote   string
	Messages int
	Duration time.Duration
}
