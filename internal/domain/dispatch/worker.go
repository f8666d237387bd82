package dispatch

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/corey/hilite/internal/domain/lexer"
	"github.com/corey/hilite/internal/domain/token"
)

// WorkerRequest is what crosses to a worker.
type WorkerRequest struct {
	Language string `json:"language"`
	Text     string `json:"text"`
}

// WorkerReply is what comes back: the tree in wire form and the guard flag.
type WorkerReply struct {
	Tree    token.Wire `json:"tree"`
	Aborted bool       `json:"aborted,omitempty"`
}

// HandleWorkerRequest decodes req, tokenizes with tk and encodes the reply.
// It is the body of every worker, local or remote.
func HandleWorkerRequest(tk *lexer.Tokenizer, req []byte) ([]byte, error) {
	var wr WorkerRequest
	if err := json.Unmarshal(req, &wr); err != nil {
		return nil, fmt.Errorf("decode worker request: %w", err)
	}
	res := tk.TokenizeByName(wr.Text, wr.Language)
	return json.Marshal(WorkerReply{Tree: token.Encode(res.Stream), Aborted: res.Aborted})
}

// SpawnWorker runs every request on a fresh goroutine that is discarded after
// it replies.
type SpawnWorker struct {
	tokenizer *lexer.Tokenizer
}

// NewSpawnWorker creates a SpawnWorker tokenizing with tk.
func NewSpawnWorker(tk *lexer.Tokenizer) *SpawnWorker {
	return &SpawnWorker{tokenizer: tk}
}

type workerResult struct {
	data []byte
	err  error
}

// Tokenize implements ports.Worker.
func (w *SpawnWorker) Tokenize(ctx context.Context, req []byte) ([]byte, error) {
	// buffered so an abandoned worker can still deliver and exit
	reply := make(chan workerResult, 1)
	payload := append([]byte(nil), req...)

	go func() {
		data, err := HandleWorkerRequest(w.tokenizer, payload)
		reply <- workerResult{data: data, err: err}
	}()

	select {
	case r := <-reply:
		return r.data, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
