// package models defines the data model for the catalog reconciliation CLI.
//
// Source-side types (SourceTrack, SourcePlaylist) mirror the Yandex Music
// export files; target-side types (LibraryTrack, Candidate) mirror Spotify
// entities. MatchRecord ties the two together and is what the ledger
// persists.
package models
