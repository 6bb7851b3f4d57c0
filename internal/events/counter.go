package events

// CounterChanged is emitted after every successful store mutation.
type CounterChanged struct {
	Count int
}
