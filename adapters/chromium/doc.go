// Package mergechromium provides rendering surfaces backed by a shared
// headless Chromium instance.
//
// Browser implements merge.SurfaceProvider. Every surface is a fresh tab on
// the shared browser; the document is mounted with a scoped style element that
// is removed again when the surface is closed. Captures are full-page PNG
// screenshots at the configured device scale.
package mergechromium
