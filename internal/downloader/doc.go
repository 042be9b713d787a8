// Package downloader fetches archive links into a download directory and,
// optionally, into object storage.
//
// Each link goes through these steps:
//
//	RESOLVING_NAME -> DEDUPLICATING -> CHECK_REMOTE_EXISTS -> CHECK_LOCAL_EXISTS
//	    -> DOWNLOADING -> UPLOADING -> DONE
//
// Any step can end in ABORTED. A link whose HEAD response has no usable
// Content-Disposition filename is logged and skipped. Transport failures and
// unexpected statuses while downloading are returned to the caller.
//
// # Usage
//
//	f := downloader.NewFetcher(client, downloader.Options{
//	    DownloadDir: "archives",
//	    Store:       st, // nil to keep files local
//	    Logger:      logger,
//	})
//	summary := f.Dispatch(ctx, links, 4)
//
// # Worker Pool
//
// Dispatch runs up to N fetches at once. The only state they share is the
// filename index, so two links that resolve to the same name never write the
// same local file.
package downloader
