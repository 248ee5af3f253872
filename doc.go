// Package nebula is an extraction engine that drives cursor-paginated source
// adapters to exhaustion and hands every page to a batch sink.
//
// # Architecture
//
// A run has four collaborators:
//
//  1. A source adapter (core.Adapter) that connects to one backend and yields
//     pages of records. Each adapter belongs to a pagination family: offset,
//     continuation token, key range, scan iterator, or single shot.
//
//  2. A cursor (pkg/cursor) naming the next page. Cursors are immutable values
//     and carry an explicit exhaustion flag, so an empty page never ends a run
//     on its own.
//
//  3. A batch sink (core.BatchSink) receiving each non-empty page as one
//     indivisible write: a JSONL file, an S3 or GCS object, or a Kafka batch.
//
//  4. A job state store (pkg/state) counting succeeded and failed runs per
//     job, backed by memory, a JSON file, SQLite or Postgres.
//
// The orchestrator (internal/pipeline) sequences them: load state, connect,
// fetch until exhausted, write each page, disconnect, record the outcome.
// Failures become a failed Outcome rather than a panic or a bare error.
//
// # Quick Start
//
// Describe a job in YAML and run it:
//
//	job_id: orders
//	source:
//	  type: postgresql
//	  credentials:
//	    dsn: ${ORDERS_DSN}
//	  query: SELECT * FROM orders ORDER BY id
//	sink:
//	  type: s3
//	  bucket: exports
//	  prefix: orders
//	  compression: zstd
//	state:
//	  type: sqlite
//	  path: /var/lib/nebula-extract/state.db
//
//	nebula-extract run -c orders.yaml
//	nebula-extract state show orders --state-type sqlite --state-path /var/lib/nebula-extract/state.db
//
// # Key Packages
//
//	internal/pipeline          - Orchestrator and job runner
//	pkg/connector/core         - Adapter, sink and page contracts
//	pkg/connector/base         - BaseAdapter lifecycle and page helpers
//	pkg/connector/sources      - Source adapters by backend
//	pkg/connector/destinations - Batch sinks
//	pkg/connector/registry     - Name to factory lookup
//	pkg/cursor                 - Pagination cursor
//	pkg/state                  - Job state stores
//	pkg/config                 - Job, source, sink and state configuration
//	pkg/nebulaerrors           - Typed errors
//	pkg/logger                 - Structured logging
//	pkg/metrics                - Prometheus collectors
//	pkg/observability          - OpenTelemetry tracing
//
// # License
//
// Nebula is released under the Apache 2.0 License.
// See LICENSE file for details.
package nebula
