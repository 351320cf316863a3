package protocol

// Op identifies the operation of a decoded request
type Op string

const (
	OpGet      Op = "get"
	OpSet      Op = "set"
	OpDelete   Op = "delete"
	OpBatchPut Op = "batch_put"
)

// Pair is one key/value of a batch put
type Pair struct {
	Key   string
	Value string
}

// Request is one decoded client operation
type Request struct {
	Op    Op
	Key   string
	Value string
	Pairs []Pair // OpBatchPut only
}

// ResponseKind tells an encoder which shape to write
type ResponseKind int

const (
	KindAck ResponseKind = iota
	KindValue
	KindError
)

// Response is the result of dispatching one Request
type Response struct {
	Kind  ResponseKind
	Op    Op
	Key   string
	Value string
	Found bool
	Err   error
}

// Ack acknowledges a successful mutation
func Ack(op Op) *Response {
	return &Response{Kind: KindAck, Op: op}
}

// Value answers a GET. found=false means the key is absent.
func Value(key, value string, found bool) *Response {
	return &Response{Kind: KindValue, Op: OpGet, Key: key, Value: value, Found: found}
}

// Failure wraps err as an error response for op. op may be empty when the
// request could not be decoded.
func Failure(op Op, err error) *Response {
	return &Response{Kind: KindError, Op: op, Err: err}
}
