package integration

import (
	"context"

	"github.com/erp/ordersync/internal/domain/integration"
)

// TransactionScope provides transactional access to the order writer.
// Every order of one fetched page is saved inside a single Execute call, so a
// page is committed or rolled back as a unit.
type TransactionScope interface {
	// Execute runs fn within a database transaction.
	// If fn returns an error, the transaction is rolled back.
	Execute(ctx context.Context, fn func(repos TransactionalRepositories) error) error
}

// TransactionalRepositories provides repositories bound to the current transaction
type TransactionalRepositories interface {
	// OrderWriter returns the order writer scoped to the current transaction
	OrderWriter() integration.OrderWriter
}

// NoOpTransactionScope runs fn without a real transaction.
// This is useful for testing or when transaction support is not required.
type NoOpTransactionScope struct {
	writer integration.OrderWriter
}

// NewNoOpTransactionScope creates a NoOpTransactionScope around writer
func NewNoOpTransactionScope(writer integration.OrderWriter) *NoOpTransactionScope {
	return &NoOpTransactionScope{writer: writer}
}

// Execute runs the function without a real transaction
func (s *NoOpTransactionScope) Execute(_ context.Context, fn func(repos TransactionalRepositories) error) error {
	return fn(s)
}

// OrderWriter returns the wrapped writer
func (s *NoOpTransactionScope) OrderWriter() integration.OrderWriter {
	return s.writer
}

var _ TransactionScope = (*NoOpTransactionScope)(nil)
var _ TransactionalRepositories = (*NoOpTransactionScope)(nil)
