package db

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"

	"github.com/media-pipelines/media-pipelines-go/internal/retry"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name          string
		err           error
		wantTransient bool
	}{
		{name: "nil", err: nil},
		{name: "connection failure", err: &pgconn.PgError{Code: "08006"}, wantTransient: true},
		{name: "serialization failure", err: &pgconn.PgError{Code: "40001"}, wantTransient: true},
		{name: "deadlock", err: &pgconn.PgError{Code: "40P01"}, wantTransient: true},
		{name: "server starting", err: &pgconn.PgError{Code: "57P03"}, wantTransient: true},
		{name: "unique violation", err: &pgconn.PgError{Code: "23505"}},
		{name: "undefined table", err: &pgconn.PgError{Code: "42P01"}},
		{name: "plain error", err: errors.New("bad input")},
		{name: "cancelled", err: context.Canceled},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify("postgres.op", tt.err)
			if tt.err == nil {
				assert.NoError(t, got)
				return
			}

			var transient *retry.TransientError
			assert.Equal(t, tt.wantTransient, errors.As(got, &transient))
			assert.ErrorIs(t, got, tt.err)
			assert.Equal(t, tt.wantTransient, retry.IsTransient(got))
		})
	}
}

func TestWrapError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantNil  bool
		wantIs   error
		contains string
	}{
		{name: "nil", err: nil, wantNil: true},
		{name: "missing table", err: &pgconn.PgError{Code: "42P01", Message: "relation does not exist"}, wantIs: ErrSchemaMissing, contains: "scan media records"},
		{name: "other pg error", err: &pgconn.PgError{Code: "23502", Message: "null value"}, contains: "[23502]"},
		{name: "plain error", err: errors.New("conn refused"), contains: "conn refused"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := WrapError(tt.err, "scan media records")
			if tt.wantNil {
				assert.NoError(t, got)
				return
			}
			assert.Error(t, got)
			if tt.wantIs != nil {
				assert.ErrorIs(t, got, tt.wantIs)
			}
			assert.Contains(t, got.Error(), tt.contains)
		})
	}
}
