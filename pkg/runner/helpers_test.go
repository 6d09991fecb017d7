package runner_test

import (
	"bytes"
	"io"
	"sync"
)

func ioPipe() (*io.PipeReader, *io.PipeWriter) {
	return io.Pipe()
}

// syncWriter guards a buffer written by the handler while the test reads it.
type syncWriter struct {
	mu sync.Mutex
	w  *bytes.Buffer
}

func (s *syncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}
