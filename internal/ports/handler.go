package ports

// Handler is invoked by a transport once per received datagram, never concurrently.
// The returned reply is sent back to the sender when non-empty; it is only valid
// until the next call.
type Handler interface {
	OnMessage(data []byte) []byte
}
