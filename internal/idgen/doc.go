// Package idgen centralises identifier generation so tests can replace it
// with a deterministic source.
package idgen
