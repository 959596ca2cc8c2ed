// package match implements the cross-catalog track matcher: text
// normalization, Cyrillic transliteration, Levenshtein similarity scoring,
// library indexing, two-phase prematching and search-result ranking.
//
// Everything in this package is a pure function of its inputs; the
// reconciliation pipeline in internal/tasks owns all state.
package match
