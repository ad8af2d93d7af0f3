// Package scan drives the antivirus state machine for uploaded files,
// orchestrating an external ClamAV daemon against the storage backend.
package scan

import (
	"bytes"
	"errors"
	"fmt"
	"time"

	clamd "github.com/dutchcoders/go-clamd"
)

// ErrScannerUnavailable marks the daemon as unreachable; the job is retried
// without leaving the scanning state.
var ErrScannerUnavailable = errors.New("scanner unavailable")

// Verdicts returned by a completed scan attempt.
const (
	VerdictClean    = "clean"
	VerdictInfected = "infected"
	VerdictError    = "error"
)

// Result is the parsed outcome of one daemon scan.
type Result struct {
	Verdict   string
	VirusName string // set for infected
	Message   string // set for error
}

// Scanner is the daemon contract the orchestrator depends on; the ClamAV
// implementation is swapped for a fake in tests.
type Scanner interface {
	Ping() error
	ScanBytes(data []byte) (*Result, error)
}

// ClamAVScanner talks to a clamd network socket.
type ClamAVScanner struct {
	clam    *clamd.Clamd
	timeout time.Duration
}

// NewClamAVScanner connects to the daemon at address, e.g.
// "tcp://localhost:3310". The timeout bounds one scan call.
func NewClamAVScanner(address string, timeout time.Duration) *ClamAVScanner {
	return &ClamAVScanner{clam: clamd.NewClamd(address), timeout: timeout}
}

func (s *ClamAVScanner) Ping() error {
	if err := s.clam.Ping(); err != nil {
		return fmt.Errorf("%w: %v", ErrScannerUnavailable, err)
	}
	return nil
}

// ScanBytes submits the full content to the daemon and parses its verdict.
// A timeout is reported as an error, identical to any other daemon failure.
func (s *ClamAVScanner) ScanBytes(data []byte) (*Result, error) {
	abort := make(chan bool)
	defer close(abort)

	responses, err := s.clam.ScanStream(bytes.NewReader(data), abort)
	if err != nil {
		return nil, fmt.Errorf("scan failed: %w", err)
	}

	select {
	case res, ok := <-responses:
		if !ok || res == nil {
			return &Result{Verdict: VerdictError, Message: "unexpected scan result format"}, nil
		}
		switch res.Status {
		case clamd.RES_OK:
			return &Result{Verdict: VerdictClean}, nil
		case clamd.RES_FOUND:
			return &Result{Verdict: VerdictInfected, VirusName: res.Description}, nil
		default:
			return &Result{Verdict: VerdictError, Message: res.Raw}, nil
		}
	case <-time.After(s.timeout):
		return nil, fmt.Errorf("scan timed out after %s", s.timeout)
	}
}

var _ Scanner = (*ClamAVScanner)(nil)
