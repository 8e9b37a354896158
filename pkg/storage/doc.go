// Package storage holds the sinks that receive fetched documents.
//
// A Sink gets each document with its kind and a stable key. DirSink writes
// one file per document under <dir>/<kind>/ with a temp file and rename, so
// partially written files never appear under their final name. NDJSONSink
// streams {"kind","key","document"} lines, which is what `fetch --out -`
// prints.
//
//	sink, err := storage.NewDirSink("out")
//	if err != nil {
//	    return err
//	}
//	err = sink.Write(storage.KindResults, raceID, doc)
package storage
