package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLedgerFlushesFirstRecordImmediately(t *testing.T) {
	ledgerPath := filepath.Join(t.TempDir(), "processed.csv")
	ledger := NewLedger(ledgerPath, 100)

	assert.Nil(t, ledger.Append("/tmp/a.txt", "Project/a.txt", "syn2", false))
	rows, readErr := readLedgerCSV(ledgerPath)
	assert.Nil(t, readErr)
	assert.Len(t, rows, 1)
	assert.Equal(t, "/tmp/a.txt", rows[0].LocalPath)
	assert.Equal(t, "Project/a.txt", rows[0].RemotePath)
	assert.Equal(t, "syn2", rows[0].SynapseID)
	assert.False(t, rows[0].RemoteOnly)

	// later records are held until the batch fills or the ledger closes
	assert.Nil(t, ledger.Append("/tmp/b.txt", "Project/b.txt", "syn3", false))
	rows, readErr = readLedgerCSV(ledgerPath)
	assert.Nil(t, readErr)
	assert.Len(t, rows, 1)

	assert.Nil(t, ledger.Close())
	rows, readErr = readLedgerCSV(ledgerPath)
	assert.Nil(t, readErr)
	assert.Len(t, rows, 2)
}

func TestLedgerFlushesFullBatches(t *testing.T) {
	ledgerPath := filepath.Join(t.TempDir(), "processed.csv")
	ledger := NewLedger(ledgerPath, 2)

	assert.Nil(t, ledger.Append("/tmp/a.txt", "Project/a.txt", "syn2", false))
	assert.Nil(t, ledger.Append("/tmp/b.txt", "Project/b.txt", "syn3", false))
	assert.Nil(t, ledger.Append("/tmp/c.txt", "Project/c.txt", "syn4", false))

	rows, readErr := readLedgerCSV(ledgerPath)
	assert.Nil(t, readErr)
	assert.Len(t, rows, 3)
}

func TestLedgerAppendsAcrossRunsWithoutSecondHeader(t *testing.T) {
	ledgerPath := filepath.Join(t.TempDir(), "processed.csv")

	firstRun := NewLedger(ledgerPath, 100)
	assert.Nil(t, firstRun.Append("/tmp/a.txt", "Project/a.txt", "syn2", false))
	assert.Nil(t, firstRun.Close())

	secondRun := NewLedger(ledgerPath, 100)
	assert.Nil(t, secondRun.Append("/tmp/b.txt", "Project/b.txt", "syn3", false))
	assert.Nil(t, secondRun.Close())

	rows, readErr := readLedgerCSV(ledgerPath)
	assert.Nil(t, readErr)
	assert.Len(t, rows, 2)
	assert.Equal(t, "/tmp/a.txt", rows[0].LocalPath)
	assert.Equal(t, "/tmp/b.txt", rows[1].LocalPath)
}

func TestLedgerRemoteOnlyRoundTrip(t *testing.T) {
	ledgerPath := filepath.Join(t.TempDir(), "processed.csv")
	ledger := NewLedger(ledgerPath, 100)

	assert.Nil(t, ledger.Append("raw/2024", "Project/raw/2024", "syn5", true))
	assert.Nil(t, ledger.Close())

	rows, readErr := readLedgerCSV(ledgerPath)
	assert.Nil(t, readErr)
	assert.Len(t, rows, 1)
	assert.True(t, rows[0].RemoteOnly)
}

func TestReadLedgerCSVRejectsWrongHeader(t *testing.T) {
	ledgerPath := writeTestFile(t, t.TempDir(), "other.csv", "a,b\n1,2\n")

	_, readErr := readLedgerCSV(ledgerPath)
	assert.ErrorContains(t, readErr, "Unexpected header in processed CSV:")
}

func TestLedgerCloseWithoutRecordsWritesNothing(t *testing.T) {
	ledgerPath := filepath.Join(t.TempDir(), "processed.csv")
	ledger := NewLedger(ledgerPath, 100)

	assert.Nil(t, ledger.Close())
	_, statErr := os.Stat(ledgerPath)
	assert.True(t, os.IsNotExist(statErr))
}
