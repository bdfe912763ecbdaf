/*
Package storage provides the BoltDB-backed journal of a herald component.

The event repository itself lives in memory: a provider's produced events
are rebuilt by subscribers asking again, and its subscriptions disappear
with the process. The journal remembers the subscriptions this component
requested, plus the peers it learned endpoints for, so that a restarted
daemon can request the same subscriptions again.

# Architecture

	┌──────────────────── BOLTDB JOURNAL ──────────────────────┐
	│                                                          │
	│  ┌────────────────────────────────────────────┐          │
	│  │            BoltStore                       │          │
	│  │  - File: <dataDir>/herald.db               │          │
	│  │  - Format: B+tree with MVCC                │          │
	│  │  - Transactions: ACID with fsync           │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                    │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │              Bucket Structure              │          │
	│  │  subscriptions  (event key)                │          │
	│  │  peers          (dotted address)           │          │
	│  └────────────────────────────────────────────┘          │
	└──────────────────────────────────────────────────────────┘

Records are JSON. A subscription is keyed by the string form of the event
key the provider assigned, e.g. "QueryTime/periodic/3@2.1.1.1", the same
string lifecycle notices carry in their "event" metadata. Put is an upsert.

# Lifecycle

  - Confirmed subscription: PutSubscription
  - Update moved to another id: DeleteSubscription(old) then PutSubscription
  - Canceled, lost provider, or rejected on replay: DeleteSubscription
  - Daemon start: ListSubscriptions and request each setup again

# Usage

	store, err := storage.NewBoltStore("/var/lib/herald")
	if err != nil {
		return err
	}
	defer store.Close()

	subs, err := store.ListSubscriptionsByProvider(types.MustParseAddress("2.255.255.255"))

Missing records are reported with ErrNotFound, wrapped with the key.
*/
package storage
