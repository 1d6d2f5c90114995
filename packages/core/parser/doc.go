// Package parser reads beaconspec test documents.
//
// A document is a JSON or YAML object with two keys: test, holding the
// ordered steps, and options, holding the trackers whose outgoing requests
// are captured. The same shape is accepted by the invocation server.
//
// Documents are checked against an embedded JSON Schema first, then
// converted into closed Step and Assertion variants. An unknown action or
// assertion type is rejected here rather than at run time.
package parser
