// Package loader implements crawler.PageLoader on top of a plain HTTP
// client and on top of headless Chrome.
//
// Both loaders report failures as *model.LoadError so the crawler can decide
// whether a retry is worthwhile:
//
//   - ABORTED: the server dropped the connection or asked us to back off
//     (HTTP 429 and 503)
//   - TIMEOUT: the page did not finish loading in time
//   - OTHER_NETWORK_ERROR: anything else, including 4xx and 5xx responses
//
// HTTPLoader is fast and sufficient for server-rendered sites. BrowserLoader
// executes JavaScript and sees anchors that scripts add to the DOM.
package loader
