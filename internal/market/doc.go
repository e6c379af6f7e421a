// Package market resolves market metadata and wires resolved markets
// into a stream connection, including the derived NO-side book for
// binary markets whose venue only publishes the YES side.
package market
