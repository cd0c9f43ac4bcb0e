package queue

import (
	"context"
	"fmt"
)

// Appender submits messages to the writer loop. It is safe for concurrent
// use and cheap to create; all appenders of a queue share one writer.
type Appender struct {
	q *Queue
}

// Append writes payload and returns its sequence. ctx bounds only the wait
// for room in the writer's queue; once accepted, the payload is written and
// Append waits for its sequence even if ctx is cancelled.
func (a *Appender) Append(ctx context.Context, payload []byte) (uint64, error) {
	seqs, err := a.AppendBatch(ctx, [][]byte{payload})
	if err != nil {
		return 0, err
	}
	return seqs[0], nil
}

// AppendBatch writes payloads as one request; they receive contiguous
// sequences in order. The batch is not atomic: on error the returned slice
// holds the sequences of the payloads that were written before it.
func (a *Appender) AppendBatch(ctx context.Context, payloads [][]byte) ([]uint64, error) {
	if len(payloads) == 0 {
		return nil, nil
	}
	res, err := a.q.submit(ctx, payloads)
	if err != nil {
		return nil, err
	}
	seqs := make([]uint64, res.n)
	for i := range seqs {
		seqs[i] = res.first + uint64(i)
	}
	return seqs, res.err
}

// CurrentSequence returns the next sequence the writer will assign. It is
// advisory under concurrent appends.
func (a *Appender) CurrentSequence() uint64 {
	return a.q.CurrentSequence()
}

func (q *Queue) submit(ctx context.Context, payloads [][]byte) (writeResult, error) {
	if err := ctx.Err(); err != nil {
		return writeResult{}, err
	}
	if err := q.state.err(); err != nil {
		return writeResult{}, fmt.Errorf("%w: %w", ErrWriterStopped, err)
	}
	req := &writeRequest{payloads: payloads, resp: make(chan writeResult, 1)}

	q.sendMu.RLock()
	if q.closing {
		q.sendMu.RUnlock()
		return writeResult{}, ErrWriterStopped
	}
	select {
	case q.reqs <- req:
	case <-ctx.Done():
		q.sendMu.RUnlock()
		return writeResult{}, ctx.Err()
	}
	q.sendMu.RUnlock()

	// Once queued the request is always answered, even during Close. Giving
	// up here would hide sequences that are written anyway.
	return <-req.resp, nil
}
