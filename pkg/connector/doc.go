/*
Package connector is the server-side UI tree.

A connector is any type embedding Base. Containers also implement Children;
roots (one per browser window) sit at the top of every attached tree and
own the per-window bookkeeping:

  - Registry hands out identifiers the first time a connector is referenced
    in a response and forgets them when the connector leaves the tree.
    Identifiers are "PID" plus a counter, or "PID_S" plus the debug id, and
    are never reused.
  - DirtyTracker records which connectors changed since the last response,
    in the order they were marked.
  - ClientCache remembers which one-time payloads (type mappings, layout
    templates) the client already has.

A connector belongs to whatever root RootOf finds at the top of its parent
chain. SetParent keeps the dirty sets of the old and new roots consistent
when subtrees move. Containers call Adopt before recording a new child: it
takes the child away from its previous Remover parent, so a connector is
listed by exactly one parent, and it panics with ErrCycle when the child
would end up inside its own subtree.

# Changes from the client

Connectors opt into client changes by implementing VariableOwner (legacy
variable changes) or by registering RPC handlers with RegisterRPC. Server
to client calls are queued with Invoke and sent with the next response,
ordered by a sequence number shared by every root of the application.

# Client types

The client picks its widget by type name. TypeRegistry maps Go types to
those names; a type without an entry is looked up through the types it
embeds, and a connector may also answer ClientTyper itself.

	connector.RegisterType(&Label{}, "canopy.ui.Label")

Nothing in this package is safe for concurrent use. Everything runs under
the owning application's lock.
*/
package connector
