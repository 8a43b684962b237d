package audio

// Drain consumes ch until it is closed, discarding everything. The segmenter
// keeps emitting frame events and segments until it observes cancellation;
// once the consumer has stopped, draining its output channels lets those
// in-flight sends complete instead of parking on the context.
func Drain[T any](ch <-chan T) {
	for range ch {
	}
}
