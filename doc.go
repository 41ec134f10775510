// Package fiscal turns a stream of financial operations into taxable events.
// It is designed to be deterministic and auditable: the same operations and
// the same configuration always give byte identical events and ledgers.
//
// The core functionalities include:
//   - Ledger Index: per (account, asset) ordered parcels, the tax lots
//     created by acquisitions and consumed by disposals.
//   - Identification: the FIFO, LIFO, specific identification and average
//     cost methods deciding which parcels a disposal consumes.
//   - Normalization: exact conversion of amounts to the reporting currency
//     from dated exchange rates (see package fx).
//   - Classification: capital, income or expense, and holding period
//     discount eligibility, configured as policy data.
//   - Aggregation Engine: partitions operations per (account, asset),
//     processes partitions in parallel and emits taxable events.
//   - Views: totals per fiscal year and class.
//
// Operations and events are persisted as JSONL. This package serves as the
// foundational logic for the `fsc` command-line tool.
package fiscal
