// package services defines the external collaborators of the
// reconciliation pipeline: the target catalog's search, library and playlist
// endpoints, and the error taxonomy remote calls are classified into.
//
// The concrete implementation talks to the Spotify Web API.
package services
