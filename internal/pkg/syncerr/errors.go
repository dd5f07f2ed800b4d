package syncerr

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"

	"github.com/go-sql-driver/mysql"
)

var (
	ErrConnectivity     = errors.New("data store unreachable")
	ErrTransformation   = errors.New("invalid aggregated record")
	ErrBatchCommit      = errors.New("batch commit failed")
	ErrEstimation       = errors.New("record estimation failed")
	ErrAlreadyRunning   = errors.New("sync already running")
	ErrInvalidRequest   = errors.New("invalid sync request")
	ErrChannelForbidden = errors.New("channel not allowed")
)

// ConnectivityError means the source or destination store could not be reached.
type ConnectivityError struct {
	Store string
	Op    string
	Err   error
}

func (e *ConnectivityError) Error() string {
	return fmt.Sprintf("%s store unreachable during %s: %v", e.Store, e.Op, e.Err)
}

func (e *ConnectivityError) Unwrap() error { return e.Err }

func (e *ConnectivityError) Is(target error) bool { return target == ErrConnectivity }

// TransformationError rejects a single aggregated row.
type TransformationError struct {
	Account  string
	Channel  string
	Trandate string
	Reason   string
}

func (e *TransformationError) Error() string {
	return fmt.Sprintf("invalid record account=%q channel=%q trandate=%s: %s",
		e.Account, e.Channel, e.Trandate, e.Reason)
}

func (e *TransformationError) Is(target error) bool { return target == ErrTransformation }

// BatchCommitError means a write batch was rolled back. Earlier batches of the run stay committed.
type BatchCommitError struct {
	Batch int
	Size  int
	Err   error
}

func (e *BatchCommitError) Error() string {
	return fmt.Sprintf("batch %d (%d records) rolled back: %v", e.Batch, e.Size, e.Err)
}

func (e *BatchCommitError) Unwrap() error { return e.Err }

func (e *BatchCommitError) Is(target error) bool { return target == ErrBatchCommit }

// EstimationError is returned when the exact count query fails.
type EstimationError struct {
	Err error
}

func (e *EstimationError) Error() string {
	return fmt.Sprintf("estimate failed: %v", e.Err)
}

func (e *EstimationError) Unwrap() error { return e.Err }

func (e *EstimationError) Is(target error) bool { return target == ErrEstimation }

// MySQL server errors that mean the connection itself is unusable.
var connectivityErrorNumbers = map[uint16]bool{
	1040: true, // too many connections
	1045: true, // access denied
	1049: true, // unknown database
	1053: true, // server shutdown in progress
	1129: true, // host blocked
	1203: true, // max user connections
}

// IsConnectivity reports whether err looks like a transport-level failure.
func IsConnectivity(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrConnectivity) || errors.Is(err, driver.ErrBadConn) || errors.Is(err, mysql.ErrInvalidConn) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return connectivityErrorNumbers[myErr.Number]
	}
	return false
}

// Classify wraps transport failures into a ConnectivityError and leaves other errors as they are.
func Classify(store, op string, err error) error {
	if err == nil {
		return nil
	}
	if IsConnectivity(err) {
		var connErr *ConnectivityError
		if errors.As(err, &connErr) {
			return err
		}
		return &ConnectivityError{Store: store, Op: op, Err: err}
	}
	return err
}

// Retryable reports whether a failed background run may be attempted again.
// Invalid input and invalid data fail the same way every time, and a run that hit its
// hard timeout is not restarted.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrTransformation) || errors.Is(err, ErrInvalidRequest) || errors.Is(err, ErrChannelForbidden) {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return true
}
