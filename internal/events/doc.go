// Package events connects the engine to RabbitMQ: it consumes booking and
// assignment change events from the record store's topic exchange and
// publishes staff notifications to a second topic exchange.
//
// Routing keys
//
//	tableflow.changes        booking.inserted | booking.updated |
//	                         booking.status_transitioned | assignment.changed
//	tableflow.notifications  conflict.warning | conflict.urgent | conflict.overdue
//
// Deliveries that cannot be decoded are rejected without requeue; handler
// failures are requeued.
package events
