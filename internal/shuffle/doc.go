// Package shuffle implements a bounded-memory external shuffle for files of
// fixed-size records.
//
// Phases:
//   - Partition: the input is read once, front to back, in K chunks of at most B
//     bytes. Each chunk is shuffled in memory (Fisher-Yates) and written to its own
//     scratch file.
//   - Merge: records are pulled one at a time from the scratch files, choosing a
//     file with probability proportional to its remaining records, and appended to
//     the output.
//
// Memory use is one chunk buffer per partition worker plus a small read buffer
// per scratch file during the merge; it never grows with the record count.
//
// Scratch files move through Created -> Written -> Reopened -> Drained -> Deleted.
// Reading starts only after every partition has been written and closed.
package shuffle
