package receiver

// Receiver is a mailbox session. Calls are made in order: Open, Search,
// any number of Fetch, then Close.
type Receiver interface {
	// Open connects, authenticates and selects the mailbox.
	Open() error

	// Search returns the identifiers of matching messages, oldest first.
	Search() ([]uint32, error)

	// Fetch returns the raw RFC 5322 bytes of one message.
	Fetch(id uint32) ([]byte, error)

	// Close ends the session. It is safe to call after a failed Open.
	Close() error
}
