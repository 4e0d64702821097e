package queue

// qerr is a comparable error type so callers can use errors.Is.
type qerr string

func (e qerr) Error() string { return string(e) }

var (
	ErrNotFound  = qerr("queue not found")
	ErrFull      = qerr("queue is full")
	ErrAlreadyIn = qerr("already in queue")
	ErrNotIn     = qerr("player not in queue")
)
