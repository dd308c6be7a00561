// Package core contains the BlueLedger domain contracts, entities, and
// orchestration logic: project lifecycle, MRV attestations, oracle summaries,
// and the credit ledger with its conservation checks. Storage, locking, and
// transport adapters depend on this package; core must not depend on them.
package core
