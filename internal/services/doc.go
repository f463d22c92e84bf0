// Package services defines the collaborators at the edges of collection: where candidate records come from and
// where exported files go.
//
// # Extraction
//
// An [Extractor] yields candidate [models.UserRecord] values for one collection pass. Page parsing happens outside
// this module; [FileExtractor] reads candidates that a scraper already wrote to disk, either as a JSON array or as
// JSON lines, and fills in the id and discovery time when the scraper left them out.
//
// # Downloads
//
// A [Downloader] stores an export under a file name and returns a download id. [FileDownloader] accepts data: URLs,
// file:// URLs and http(s) URLs and never overwrites an earlier download; a clashing name gets a " (n)" suffix.
package services
