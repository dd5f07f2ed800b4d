package syncerr

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"testing"

	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
)

func TestIsConnectivity(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"bad conn", driver.ErrBadConn, true},
		{"wrapped invalid conn", fmt.Errorf("query: %w", mysql.ErrInvalidConn), true},
		{"dial error", &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}, true},
		{"dns error", &net.DNSError{Err: "no such host", Name: "db"}, true},
		{"access denied", &mysql.MySQLError{Number: 1045, Message: "Access denied"}, true},
		{"duplicate key", &mysql.MySQLError{Number: 1062, Message: "Duplicate entry"}, false},
		{"plain error", errors.New("syntax error"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsConnectivity(tt.err))
		})
	}
}

func TestClassify(t *testing.T) {
	err := Classify("source", "fetch chunk", driver.ErrBadConn)

	var connErr *ConnectivityError
	assert.True(t, errors.As(err, &connErr))
	assert.Equal(t, "source", connErr.Store)
	assert.ErrorIs(t, err, ErrConnectivity)
	assert.ErrorIs(t, err, driver.ErrBadConn)

	// already classified errors are not wrapped twice
	assert.Same(t, connErr, Classify("destination", "upsert", err).(*ConnectivityError))

	plain := errors.New("boom")
	assert.Equal(t, plain, Classify("source", "fetch chunk", plain))
	assert.NoError(t, Classify("source", "fetch chunk", nil))
}

func TestTypedErrorsMatchSentinels(t *testing.T) {
	cause := errors.New("constraint failed")

	assert.ErrorIs(t, &TransformationError{Account: "A", Reason: "empty"}, ErrTransformation)
	assert.ErrorIs(t, &BatchCommitError{Batch: 2, Size: 10, Err: cause}, ErrBatchCommit)
	assert.ErrorIs(t, &BatchCommitError{Batch: 2, Size: 10, Err: cause}, cause)
	assert.ErrorIs(t, &EstimationError{Err: cause}, ErrEstimation)
	assert.Contains(t, (&BatchCommitError{Batch: 2, Size: 10, Err: cause}).Error(), "batch 2 (10 records)")
}

func TestRetryable(t *testing.T) {
	assert.False(t, Retryable(nil))
	assert.False(t, Retryable(&TransformationError{Reason: "negative turnover"}))
	assert.False(t, Retryable(fmt.Errorf("run: %w", ErrInvalidRequest)))
	assert.False(t, Retryable(context.Canceled))
	assert.True(t, Retryable(&ConnectivityError{Store: "source", Op: "fetch", Err: driver.ErrBadConn}))
	assert.True(t, Retryable(&BatchCommitError{Batch: 1, Err: errors.New("deadlock")}))
	assert.False(t, Retryable(fmt.Errorf("chunk 4: %w", context.DeadlineExceeded)))
}
