// Package vote implements anonymized comparative voting.
//
// Every voter sees the candidates in an independently shuffled order. Each
// Ballot carries its own Permutation so positions reported by the voter can be
// mapped back to original candidate indices before a Strategy reduces the
// ballots into one score per candidate.
package vote
