package cavepedia

import (
	"errors"

	"github.com/cavepedia/cavepedia/application/service"
)

var (
	// ErrClientClosed indicates the client has been closed.
	ErrClientClosed = service.ErrClientClosed

	// ErrIngestRunning indicates StartIngest was called twice.
	ErrIngestRunning = errors.New("cavepedia: ingest already running")
)
