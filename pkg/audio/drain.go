package audio

// Drain discards everything from ch until it closes. Session teardown
// drains the inbound frame channel so the Opus decode goroutine can finish
// handing over its in-flight frame instead of leaking.
func Drain[T any](ch <-chan T) {
	for range ch {
	}
}
