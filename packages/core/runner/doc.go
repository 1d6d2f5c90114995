// Package runner executes beaconspec test definitions in a browser.
//
// A run launches a browser, opens one page, routes every outgoing request of
// that page through a capture buffer, then walks the steps strictly in order.
// Navigation and element steps that fail abort the run; assertion problems are
// recorded as FAIL or ERROR results and the run goes on. The browser is closed
// exactly once on every exit path.
package runner
