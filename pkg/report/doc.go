// Package report records the provenance of a resolution session.
//
// A [Reporter] collects one [Attempt] per build in attempt order. Recorded
// attempts are copied and never modified afterwards. [Reporter.Finalize]
// stamps the terminal [Outcome] and returns the [Report], which lists every
// combination tried together with its diagnostics. Unsuccessful sessions can
// be resumed by hand from [Report.ClosestCombination].
//
// Finished reports can be persisted through a [Store]:
//   - [FileStore]: one JSON file per report under $XDG_STATE_HOME/winch/reports
//   - [MongoStore]: a MongoDB collection, for teams sharing a history
package report
