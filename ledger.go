package main

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"sync"
)

var ledgerHeader = []string{"local_path", "remote_path", "synapse_id", "is_remote_only"}

// Ledger is the append-only record of everything a run completed. The
// header is written only when the file does not exist yet, so reruns
// keep appending to the same artifact. The first record of a run is
// flushed immediately, later records in batches, so a crash loses at
// most one batch.
type Ledger struct {
	path       string
	batchSize  int
	lock       *sync.Mutex
	buffered   [][]string
	wroteFirst bool
}

func NewLedger(path string, batchSize int) *Ledger {
	if batchSize < 1 {
		batchSize = 1
	}
	return &Ledger{
		path:      path,
		batchSize: batchSize,
		lock:      new(sync.Mutex),
		buffered:  make([][]string, 0),
	}
}

func (l *Ledger) Append(localPath, remotePath, synapseID string, isRemoteOnly bool) error {
	l.lock.Lock()
	defer l.lock.Unlock()

	l.buffered = append(l.buffered, []string{localPath, remotePath, synapseID, strconv.FormatBool(isRemoteOnly)})
	if !l.wroteFirst || len(l.buffered) >= l.batchSize {
		return l.flushLocked()
	}
	return nil
}

func (l *Ledger) Close() error {
	l.lock.Lock()
	defer l.lock.Unlock()
	return l.flushLocked()
}

func (l *Ledger) flushLocked() error {
	if len(l.buffered) == 0 {
		return nil
	}

	writeHeader := false
	if _, statErr := os.Stat(l.path); errors.Is(statErr, fs.ErrNotExist) {
		writeHeader = true
	}

	fd, openErr := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if openErr != nil {
		return openErr
	}
	defer fd.Close()

	writer := csv.NewWriter(fd)
	if writeHeader {
		if headerErr := writer.Write(ledgerHeader); headerErr != nil {
			return headerErr
		}
	}
	if writeErr := writer.WriteAll(l.buffered); writeErr != nil {
		return writeErr
	}
	l.buffered = l.buffered[:0]
	l.wroteFirst = true
	return nil
}

type ledgerRow struct {
	LocalPath  string
	RemotePath string
	SynapseID  string
	RemoteOnly bool
}

func readLedgerCSV(path string) ([]ledgerRow, error) {
	fd, openErr := os.Open(path)
	if openErr != nil {
		return nil, openErr
	}
	defer fd.Close()

	reader := csv.NewReader(fd)
	header, headerErr := reader.Read()
	if headerErr != nil {
		return nil, headerErr
	}
	if strings.Join(header, ",") != strings.Join(ledgerHeader, ",") {
		return nil, fmt.Errorf("Unexpected header in processed CSV: %s", strings.Join(header, ","))
	}

	rows := make([]ledgerRow, 0)
	for {
		record, readErr := reader.Read()
		if errors.Is(readErr, io.EOF) {
			break
		}
		if readErr != nil {
			return nil, readErr
		}
		rows = append(rows, ledgerRow{
			LocalPath:  record[0],
			RemotePath: record[1],
			SynapseID:  record[2],
			RemoteOnly: strings.EqualFold(record[3], "true"),
		})
	}
	return rows, nil
}
