// Package capture records outgoing requests that match configured trackers.
//
// A Buffer is handed every request URL the browser is about to send. URLs that
// contain a tracker's substring have their query string decoded and appended
// to that tracker's list, in arrival order. A tracker may also ask for the
// request to be aborted before it leaves the browser.
//
// Captured values are later read by the assertions package, either the most
// recent request of a tracker or all of them.
package capture
