// Package memory stores the facts users ask the assistant to remember.
//
// Records never expire. Each user has an ordered list of items; appending
// rewrites the whole JSON file through a temp file and rename, so a crash
// mid-write leaves the previous file intact. Failures wrap ErrPersistence.
package memory
