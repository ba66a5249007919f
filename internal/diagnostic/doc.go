// Package diagnostic provides structured warnings and errors produced while
// scanning and deploying fetch plan definition files.
//
// Key capabilities:
//   - Duplicate definition warnings
//   - Structural errors with the offending entity, plan and source file
//   - "Did you mean" suggestions for misspelled properties and plans
//   - Emission to a logrus entry at the matching level
package diagnostic
