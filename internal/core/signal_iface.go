package core

//go:generate mockgen -source=signal_iface.go -destination=mock/mock_signal.go -package=mock

// Frame is one encoded outbound message.
type Frame []byte

// SignalConnection abstracts a live connection's outbound channel.
// Owned by the adapter; the adapter must Close() it.
type SignalConnection interface {
	// TrySend enqueues without blocking. It returns ErrBackpressure when the
	// queue is full and ErrConnClosed once the connection is closed.
	TrySend(Frame) error
	Close()
}
