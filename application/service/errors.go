package service

import (
	"errors"
	"fmt"
)

var (
	// ErrClientClosed indicates the client has been closed.
	ErrClientClosed = errors.New("cavepedia: client is closed")

	// ErrMetadataStore indicates the metadata database failed. A pipeline
	// cycle that hits it stops and waits for the next interval.
	ErrMetadataStore = errors.New("metadata store unavailable")
)

func storeErr(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrMetadataStore, err)
}
