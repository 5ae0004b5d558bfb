// Package models contains the GORM models for the orders, order_items and
// sync_runs tables. Domain entities in internal/domain/integration carry no
// ORM tags; each model converts to and from its entity with FromDomain and
// ToDomain.
//
// Orders are keyed by (order_id, store_name). store_name is nullable because
// rows written before multi-store support have none, and the sync path never
// touches local_note, which belongs to operators.
package models
