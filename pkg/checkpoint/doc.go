// Package checkpoint records which fixture months of a date range have been
// fully processed so an interrupted run can resume.
//
// One JSON file per range lives under <data dir>/checkpoints, named after the
// range bounds. Saves go through a temp file and a rename so a crash never
// leaves a truncated checkpoint.
package checkpoint
