package ports

import "context"

// Worker tokenizes on behalf of the dispatcher. Request and reply cross the
// boundary as JSON bytes so no memory is shared with the caller:
//
//	request: {"language":"css","text":"a{}"}
//	reply:   {"tree":{"kind":"stream",...},"aborted":false}
//
// A worker must not retain req after returning. When ctx ends the caller stops
// waiting; the worker may still finish in the background.
type Worker interface {
	Tokenize(ctx context.Context, req []byte) ([]byte, error)
}
