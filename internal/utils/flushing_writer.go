package utils

import "io"

type flusher interface {
	Flush() error
}

type flushingWriter struct {
	destination io.Writer
}

// NewFlushingWriter wraps destination so every write is followed by Flush when the
// destination supports it.
func NewFlushingWriter(destination io.Writer) io.Writer {
	return flushingWriter{destination: destination}
}

func (writer flushingWriter) Write(data []byte) (int, error) {
	written, writeError := writer.destination.Write(data)
	if writeError != nil {
		return written, writeError
	}
	if flushable, isFlushable := writer.destination.(flusher); isFlushable {
		if flushError := flushable.Flush(); flushError != nil {
			return written, flushError
		}
	}
	return written, nil
}
