// Package report summarizes a finished crawl offline: it reads the CSV
// output, computes star-count cutoffs for the top percentiles, and renders
// a log-binned histogram as HTML alongside a text table of the cutoffs.
package report
