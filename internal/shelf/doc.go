// Package shelf implements the temperature-tiered storage engine.
//
// Orders are held on their home tier (hot, cold or frozen) while it has room
// and on the shared overflow tier otherwise. When overflow is also full the
// engine first tries to move the oldest overflow order whose home tier has a
// free slot back home; failing that it evicts one overflow order at random.
// Expiry is evaluated lazily on admit, retrieve and reap using the modifier
// of the tier currently holding the order.
//
// All state sits behind one mutex so that a tier's membership and its
// occupancy always change together. Events are reported after the lock is
// released.
//
// The Reaper sweeps the shelf on an interval and removes expired holdings.
package shelf
