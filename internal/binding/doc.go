// Package binding owns the exclusive device-user ownership relation.
//
// A binding ties one glove to one user. Its invariant: for any device,
// at most one binding is active at any instant. The invariant is
// enforced at the storage layer with a partial unique index over
// bindings(device_id) WHERE is_active = 1, so two racing binds for the
// same device produce exactly one success and one conflict.
//
// A (user, device) pair keeps a single row across its whole lifetime:
// unbind deactivates the row and stamps unbind_time, a later rebind
// reactivates it in place. Rows are never deleted; the table is the
// audit trail of who held which glove when.
//
// Binding state is never cached in process. Every bind, unbind and
// owner lookup re-reads the database, trading throughput for
// correctness under concurrent callers.
package binding
