// Package pack reproduces the training-time mapping from a simulated
// training schedule to the token spans that fill every sequence slot.
//
// A plan is fully determined by (dataset, schedule, seed, policy, splits,
// extra tokens): two builds with identical inputs are byte-identical, and
// the cached plan on disk is validated against that tuple before reuse.
package pack
