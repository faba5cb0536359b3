// Package music defines the canonical catalog model (artists, albums, tracks)
// and the ports the crawl, resolve and publish pipeline depends on.
package music
