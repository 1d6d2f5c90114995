// Package builtin provides the functions available inside test documents.
//
// Available functions:
//   - uuid(): random UUID v4
//   - timestamp(), timestampMs(): current Unix time
//   - now(), date(format): current UTC time as text
//   - random(min, max): random integer in range
//   - randomString(length), randomEmail(): throwaway form input
//   - urlEncode(value): query escaping
//
// Functions are invoked using the {{$functionName(args)}} syntax.
package builtin
