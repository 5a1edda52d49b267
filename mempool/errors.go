package mempool

import "errors"

var (
	// ErrMempoolIsFull is returned when the pool already holds its configured
	// number of in-flight events.
	ErrMempoolIsFull = errors.New("mempool is full")
	ErrNilEvent      = errors.New("nil consensus event")
)
