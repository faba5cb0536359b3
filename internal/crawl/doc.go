// Package crawl drives one crawl run for a source site: it pages through
// list pages, stops once a page is already fully known, and feeds each new
// detail page through the site adapter into the resolver.
package crawl
