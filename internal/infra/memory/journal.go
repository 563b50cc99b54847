package memory

import (
	"context"
	"sync"
)

// Journal is an in-process workflow step journal.
type Journal struct {
	mu    sync.Mutex
	steps map[string][]byte
}

func NewJournal() *Journal {
	return &Journal{steps: make(map[string][]byte)}
}

func (j *Journal) Lookup(_ context.Context, workflowID, step string) ([]byte, bool, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	data, ok := j.steps[workflowID+"\x00"+step]
	return data, ok, nil
}

func (j *Journal) Record(_ context.Context, workflowID, step string, result []byte) ([]byte, bool, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	key := workflowID + "\x00" + step
	if existing, ok := j.steps[key]; ok {
		return existing, false, nil
	}
	j.steps[key] = result
	return result, true, nil
}
