// Copyright 2017 Cameron Bergoon
// https://github.com/cbergoon/merkletree
// Licensed under the MIT License, see LICENCE file for details.
// Cleaned up, refactored into generics, and trimmed to the append-and-root
// operations the commitment tree needs.

// Package merkle implements a generic Merkle tree used to fold output
// commitments into a single rolling root (spec §6's Commitments
// collaborator). It holds only what the commitment tree needs: build a
// tree from a leaf set and read back its root; proof generation and
// verification are a concern of the real commitment-tree implementation
// this core only consumes through an interface.
package merkle

import (
	"errors"
	"hash"

	"golang.org/x/crypto/blake2b"
)

// Hashable is the behavior concrete leaf data must exhibit to be used in a
// Tree.
type Hashable[T any] interface {
	Hash() ([]byte, error)
	Equals(other T) bool
}

// Tree is a Merkle tree over leaf data of type T.
type Tree[T Hashable[T]] struct {
	Root         *node[T]
	Leafs        []*node[T]
	MerkleRoot   []byte
	hashStrategy func() hash.Hash
}

// WithHashStrategy overrides the tree's default BLAKE2b-512 hash strategy.
func WithHashStrategy[T Hashable[T]](hashStrategy func() hash.Hash) func(t *Tree[T]) {
	return func(t *Tree[T]) {
		t.hashStrategy = hashStrategy
	}
}

func blake2b512() hash.Hash {
	h, err := blake2b.New512(nil)
	if err != nil {
		// Only fails for an invalid key length, and we never pass one.
		panic(err)
	}
	return h
}

// NewTree builds a tree over values, which must be non-empty.
func NewTree[T Hashable[T]](values []T, options ...func(t *Tree[T])) (*Tree[T], error) {
	t := Tree[T]{
		hashStrategy: blake2b512,
	}

	for _, option := range options {
		option(&t)
	}

	if err := t.Generate(values); err != nil {
		return nil, err
	}

	return &t, nil
}

// Generate rebuilds the tree from scratch over values.
func (t *Tree[T]) Generate(values []T) error {
	if len(values) == 0 {
		return errors.New("merkle: cannot build a tree over no leaves")
	}

	leafs := make([]*node[T], 0, len(values))
	for _, value := range values {
		h, err := value.Hash()
		if err != nil {
			return err
		}

		leafs = append(leafs, &node[T]{Hash: h, Value: value, leaf: true, tree: t})
	}

	if len(leafs)%2 == 1 {
		last := leafs[len(leafs)-1]
		leafs = append(leafs, &node[T]{Hash: last.Hash, Value: last.Value, leaf: true, dup: true, tree: t})
	}

	root, err := buildIntermediate(leafs, t)
	if err != nil {
		return err
	}

	t.Root = root
	t.Leafs = leafs
	t.MerkleRoot = root.Hash

	return nil
}

// Rebuild regenerates the tree from the data currently held in its own
// leaves (skipping the duplicate padding leaf). Values the caller has
// appended to a slice of its own are not included.
func (t *Tree[T]) Rebuild() error {
	values := make([]T, 0, len(t.Leafs))
	for _, n := range t.Leafs {
		if n.dup {
			continue
		}
		values = append(values, n.Value)
	}

	return t.Generate(values)
}

// =============================================================================

type node[T Hashable[T]] struct {
	tree   *Tree[T]
	Parent *node[T]
	Left   *node[T]
	Right  *node[T]
	Hash   []byte
	Value  T
	leaf   bool
	dup    bool
}

// buildIntermediate constructs the intermediate and root levels above a
// leaf row, returning the root node.
func buildIntermediate[T Hashable[T]](row []*node[T], t *Tree[T]) (*node[T], error) {
	var next []*node[T]

	for i := 0; i < len(row); i += 2 {
		left, right := i, i+1
		if i+1 == len(row) {
			right = i
		}

		h := t.hashStrategy()
		if _, err := h.Write(append(append([]byte{}, row[left].Hash...), row[right].Hash...)); err != nil {
			return nil, err
		}

		n := node[T]{Left: row[left], Right: row[right], Hash: h.Sum(nil), tree: t}
		row[left].Parent = &n
		row[right].Parent = &n
		next = append(next, &n)

		if len(row) == 2 {
			return &n, nil
		}
	}

	return buildIntermediate(next, t)
}
