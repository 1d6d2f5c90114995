// Package browser is the narrow browser-control surface the runner drives.
//
// Launcher, Browser and Page cover exactly what a test run needs: navigate and
// wait for the network to go idle, wait for an element, evaluate a script and
// read back its JSON value, type text, and intercept every outgoing request
// with a synchronous continue-or-abort decision.
//
// The Chrome implementation speaks the DevTools protocol through chromedp.
// Package browsertest provides a scripted fake for tests.
package browser
