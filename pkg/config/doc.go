// Package config defines the configuration documents of the extraction engine.
//
// A job file names one job ID and the three collaborators of a run:
//
//	job_id: orders-nightly
//	timeout: 30m
//	source:
//	  type: postgresql
//	  credentials:
//	    dsn: ${ORDERS_DSN}
//	  query: SELECT * FROM orders ORDER BY id
//	  page_size: 500
//	sink:
//	  type: file
//	  path: /var/spool/orders
//	  compression: zstd
//	state:
//	  type: sqlite
//	  path: /var/lib/nebula-extract/state.db
//
// Values of the form ${VAR} or ${VAR:-default} are substituted from the
// environment before parsing. The engine only checks the shape of a source
// config; each adapter validates the options it needs in Connect.
package config
