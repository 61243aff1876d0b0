// Package lifecycle creates and approves contracts against the conditional
// contract store. It holds no locks: every safety property rests on the
// store's per-property compare-and-swap, so duplicate and out-of-order
// deliveries of the same request are safe.
package lifecycle
