// Package assertions evaluates test steps against captured requests and the
// page's dataLayer.
//
// Supported assertions:
//   - requestMatchRegex: a query parameter of a tracker's latest request, or of
//     any of its requests, matches a regular expression
//   - matchDataLayerKeyValue: some dataLayer entry has a key loosely equal to a value
//
// Every assertion yields a Result with outcome PASS, FAIL or ERROR. Empty data
// is a FAIL; a misconfigured assertion is an ERROR.
package assertions
