package rpc

// Marshaller encodes commands and responses exchanged between members.
type Marshaller interface {
	Marshal(v interface{}) ([]byte, error)
	Unmarshal(b []byte) (interface{}, error)
}

// Request is the envelope of a command sent to remote members.
type Request struct {
	Command interface{}
	// Replayable requests received during a flush wait for the flush to complete
	// instead of being refused.
	Replayable bool
}
