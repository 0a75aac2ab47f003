// Package pagination walks the repository id space forward from a cursor
// using the cursor-paginated listing API.
//
// Each call to Next requests the page of repositories with id > cursor and
// advances the cursor to the largest id it returned. Pages are strictly
// increasing and never overlap, so a full walk emits every visible id once.
//
// Example usage:
//
//	enum := pagination.NewEnumerator(githubClient, pagination.DefaultConfig(), 0)
//	for {
//		page := enum.Next(ctx)
//		if page.Outcome != pagination.OutcomePage {
//			break
//		}
//		process(page.Stubs)
//	}
//
// The enumerator:
//   - Sleeps a politeness delay between consecutive calls
//   - Drops ids at or below the cursor if the upstream ordering is violated
//   - Tells an empty page apart from a throttled call and a failed call
//   - Leaves the cursor untouched on anything but a page
package pagination
