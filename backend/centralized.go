package backend

// Centralized is the compile-time list of built-in store URIs (spec.md
// §9: "keep as a compile-time constant; the reload operation only swaps
// the additional-stores portion and reorders"). This distribution ships
// with no centralized stores of its own - every deployment is expected
// to supply its warehouse locations via additional-stores in
// configuration - so the list is empty but kept as a named slice rather
// than inlined, so a future release can populate it without touching
// call sites.
var Centralized = []IDURI{}
