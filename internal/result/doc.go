// Package result holds per-property execution counters for one exploration
// session and persists them as a JSON result file.
//
// # Counters
//
// Every registered property owns four monotonically increasing counters:
//
//   - precond_satisfied: rounds in which all preconditions held
//   - executed: times the property body was invoked
//   - fail: executions that ended in an assertion failure
//   - error: executions that ended in any other failure
//
// # Concurrency
//
// An Aggregator has exactly one writer, the scheduler goroutine, and no
// internal locking. Other readers (status API, artifact sync, reports) read
// the persisted file rather than the in-memory map.
//
// # Persistence
//
// Flush rewrites the whole table through a temp file and rename, so readers
// never observe a partially written file. Keys are sorted, so flushing twice
// without intervening changes produces identical bytes:
//
//	{
//	    "checkout.Cart.test_total": {
//	        "precond_satisfied": 12,
//	        "executed": 4,
//	        "fail": 1,
//	        "error": 0
//	    }
//	}
//
// Merge sums the counters of several result files, e.g. from repeated runs
// against the same application.
package result
