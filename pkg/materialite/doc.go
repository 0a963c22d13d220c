/*
Package materialite implements an in-process incremental view maintenance engine.

A dataflow is built from sources, operators and views. Sources own authoritative collections and
emit multisets of changes (deltas) on mutation; operators transform deltas; views fold the deltas
into queryable snapshots. The coordinator (Materialite) batches mutations into transactions and
drives every committed version through the graph in two phases:

  - Propagation: every registered source pushes the delta for the new version to its readers and
    the graph runs to completion synchronously. Views stage their new state and publish it, and
    notify their listeners, once the whole graph has seen the version.
  - Committed notification: a second pass lets effects fire for the values that were net added
    by the version.

Main components:

  - Materialite: versions, nested transactions, rollback and commit.
  - Stream: the typed handle used to chain operators (Map, Filter, Negate, Concat, After, Effect,
    Debug, Size) and to materialize views.
  - SortedSet, Set and KeyedMap: sources backed by a persistent treap, by nothing, and by a
    skipmap, respectively.
  - TreeView, ArrayView and ValueView: sinks.
  - Pull messages: views ask sources for their current contents when attached late. After
    operators add range hints to the request so that a sorted source can start its scan at the
    cursor instead of at the smallest value.

Everything runs on the caller's goroutine. The engine does no locking: callers must serialize
access to a Materialite and to every node created from it.
*/
package materialite
