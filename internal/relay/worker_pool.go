/*
Copyright 2026 The llm-d Authors

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package relay

import (
	"context"
	"sync"

	"github.com/llm-d-incubation/dial-relay/internal/metrics"
)

// WorkerPool bounds the number of completions a batch runs at once.
type WorkerPool struct {
	sem chan struct{}
	wg  sync.WaitGroup
}

func NewWorkerPool(size int) *WorkerPool {
	if size < 1 {
		size = 1
	}
	return &WorkerPool{sem: make(chan struct{}, size)}
}

// Acquire blocks until a slot frees up or ctx is done.
func (wp *WorkerPool) Acquire(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case wp.sem <- struct{}{}:
		wp.wg.Add(1)
		metrics.IncBatchWorkers()
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (wp *WorkerPool) Release() {
	metrics.DecBatchWorkers()
	<-wp.sem
	wp.wg.Done()
}

func (wp *WorkerPool) WaitAll() {
	wp.wg.Wait()
}
