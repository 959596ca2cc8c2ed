// package ui implements the interactive terminal surfaces: the candidate
// picker used to manually resolve rejected tracks, and the shared color
// palette.
package ui
