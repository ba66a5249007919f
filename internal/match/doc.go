// Package match provides name normalization and edit-distance similarity used
// to suggest close alternatives when a definition names a property, entity or
// fetch plan that does not exist.
//
// Key functions:
//   - NormalizeIdent: folds case and strips separators
//   - Levenshtein: computes edit distance between strings
//   - Suggest: ranks known names against a misspelled one
package match
