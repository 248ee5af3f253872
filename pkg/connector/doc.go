// Package connector groups the source adapters and batch sinks of the
// extraction engine.
//
// # Architecture Overview
//
//   - core: the Adapter, BatchSink and Page contracts, and the pagination
//     families an adapter can belong to.
//
//   - base: BaseAdapter, embedded by every adapter. It validates the config at
//     Connect, guards FetchPage against use before Connect or after
//     exhaustion, throttles fetches to the configured rate, and runs release
//     hooks exactly once on Disconnect.
//
//   - sources: one package per backend. SQL sources (postgresql, mysql,
//     sqlserver) page by offset; s3 and gcs listings by continuation token;
//     mongodb by _id key range; kafka scans partitions up to the watermarks
//     seen at Connect; bigquery and snowflake return one page.
//
//   - destinations: file, s3, gcs and kafka sinks writing one artifact per
//     page, plus the discard sink used by dry runs.
//
//   - registry: factories keyed by type name. Each connector package
//     registers itself in init; importing the sources and destinations
//     packages registers all of them.
//
//   - sdk: test doubles and a contract suite every adapter is run against.
//
// # Writing an Adapter
//
//	type WidgetSource struct {
//		*base.BaseAdapter
//		client *widgets.Client
//	}
//
//	func (s *WidgetSource) Connect(ctx context.Context, cfg *config.SourceConfig) error {
//		if err := s.Begin(cfg, "endpoint"); err != nil {
//			return err
//		}
//		// dial, then register the close with s.OnRelease
//		return s.MarkConnected()
//	}
//
//	func (s *WidgetSource) FetchPage(ctx context.Context, c cursor.Cursor) (*core.Page, error) {
//		if err := s.Guard(ctx, c); err != nil {
//			return nil, err
//		}
//		token, _ := c.Token()
//		records, next, err := s.client.List(ctx, token)
//		if err != nil {
//			return nil, nebulaerrors.Wrap(err, nebulaerrors.ErrorTypeQuery, "list widgets")
//		}
//		return base.TokenPage(records, next), nil
//	}
//
// An empty page whose cursor is not exhausted is legal: the orchestrator
// sleeps and fetches again. Only the exhaustion flag ends a run.
package connector
