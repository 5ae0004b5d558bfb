// Package integration contains the marketplace order integration bounded context.
// It keeps a local copy of remote marketplace orders eventually consistent with
// the remote open API.
//
// Key concepts:
//   - Order / OrderItem: local projection of a remote order, keyed by (order id, store)
//   - RemoteOrder: decoded upstream payload, normalised before it is persisted
//   - SyncRun: append-only log entry for every sync driver run
//   - OrderFetcher: port for the paginated remote "list orders" call
//   - OrderWriter: port for the transactional order upsert
//
// Design Pattern: Ports & Adapters
//   - Ports (interfaces) are defined here in the domain layer
//   - Adapters (implementations) are in the infrastructure layer
package integration
