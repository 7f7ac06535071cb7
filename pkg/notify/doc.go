// Package notify announces resource changes to external systems.
//
// The HTTP host publishes an Event after every successful create, update,
// replace or delete. Sinks deliver events to a destination:
//
//	Sink   | Destination
//	-------|------------------------------------------------------------
//	debug  | zap logger
//	http   | webhook endpoints, retried with exponential backoff
//	nats   | JetStream subject prefix.endpoint.op
//	kafka  | topic prefix.endpoint.op
//	mqtt   | topic prefix/endpoint/op
//
// Sinks register themselves by name when their package is imported:
//
//	import _ "github.com/edgeflare/sandman/pkg/notify/nats"
//
//	sink, err := notify.Open("nats", logger, json.RawMessage(`{"servers":["nats://localhost:4222"]}`))
//
// Multi fans an event out to several sinks. A failing sink never stops the
// others; failures are joined into one error and counted per sink.
package notify
