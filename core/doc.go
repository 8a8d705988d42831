// Package core contains the payment domain contracts, entities, and
// orchestration logic. Lower-level adapters must depend on this package; core
// must not depend on storage, transport, or provider-specific adapters.
package core
