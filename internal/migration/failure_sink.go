package migration

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

const (
	failureLogFilePermissionsConstant = 0o644
	openFailureLogErrorTemplate       = "unable to open failure log %s: %w"
	encodeFailureRecordErrorTemplate  = "unable to encode failure record for account %s: %w"
	writeFailureRecordErrorTemplate   = "unable to write failure record for account %s: %w"
	recordSeparatorConstant           = "\n"
)

// FailureRecord is the durable representation of one failed task.
type FailureRecord struct {
	AccountID      string    `json:"account_id"`
	Step           string    `json:"step"`
	Classification string    `json:"classification"`
	Error          string    `json:"error"`
	Timestamp      time.Time `json:"timestamp"`
}

// FailureSink accepts failure records. Implementations must make each record
// durable before returning.
type FailureSink interface {
	Record(failureRecord FailureRecord) error
}

// FileFailureSink appends JSON-line failure records to a log file and syncs
// after every record so a halted batch leaves a complete trail.
type FileFailureSink struct {
	logFile *os.File
}

// NewFileFailureSink opens (or creates) the append-only failure log.
func NewFileFailureSink(failureLogPath string) (*FileFailureSink, error) {
	logFile, openError := os.OpenFile(failureLogPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, failureLogFilePermissionsConstant)
	if openError != nil {
		return nil, fmt.Errorf(openFailureLogErrorTemplate, failureLogPath, openError)
	}
	return &FileFailureSink{logFile: logFile}, nil
}

// Record appends one failure record and syncs the file.
func (sink *FileFailureSink) Record(failureRecord FailureRecord) error {
	encodedRecord, encodeError := json.Marshal(failureRecord)
	if encodeError != nil {
		return fmt.Errorf(encodeFailureRecordErrorTemplate, failureRecord.AccountID, encodeError)
	}

	if _, writeError := sink.logFile.Write(append(encodedRecord, []byte(recordSeparatorConstant)...)); writeError != nil {
		return fmt.Errorf(writeFailureRecordErrorTemplate, failureRecord.AccountID, writeError)
	}
	if syncError := sink.logFile.Sync(); syncError != nil {
		return fmt.Errorf(writeFailureRecordErrorTemplate, failureRecord.AccountID, syncError)
	}
	return nil
}

// Close releases the underlying file.
func (sink *FileFailureSink) Close() error {
	return sink.logFile.Close()
}
