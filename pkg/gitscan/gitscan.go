// Package gitscan wraps go-git plumbing operations the Temporal Indexer
// needs: commit enumeration, tree walking, blob reads, branch listing, and
// reflog-based ancestor search, per spec.md §4.6's algorithm. This is the
// only non-test package that imports go-git directly.
package gitscan

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/storer"

	"github.com/jsbattig/cidx/pkg/cidxtypes"
)

// Repo wraps an opened git repository.
type Repo struct {
	repo *git.Repository
	path string
}

// Open opens the git repository rooted at path.
func Open(path string) (*Repo, error) {
	r, err := git.PlainOpen(path)
	if err != nil {
		return nil, fmt.Errorf("gitscan: open %s: %w", path, err)
	}
	return &Repo{repo: r, path: path}, nil
}

// IdentityHash returns a stable identity for this repository clone, used to
// validate a checkpoint's repo_identity_hash: the hash of the last commit
// reached when walking history back from HEAD (the root commit), a cheap,
// clone-stable fingerprint.
func (r *Repo) IdentityHash() (string, error) {
	head, err := r.repo.Head()
	if err != nil {
		return "", fmt.Errorf("gitscan: head: %w", err)
	}
	iter, err := r.repo.Log(&git.LogOptions{From: head.Hash(), Order: git.LogOrderCommitterTime})
	if err != nil {
		return "", err
	}
	defer iter.Close()

	var first plumbing.Hash
	err = iter.ForEach(func(c *object.Commit) error {
		first = c.Hash
		return nil
	})
	if err != nil {
		return "", err
	}
	return first.String(), nil
}

// ListCommits enumerates commits reachable from HEAD (all=false) or from
// every branch (all=true), oldest first ("log --reverse"), optionally
// bounded by sinceUnix and maxCommits, per spec.md §4.6 step 2.
func (r *Repo) ListCommits(all bool, sinceUnix int64, maxCommits int) ([]cidxtypes.Commit, error) {
	var hashes []plumbing.Hash
	if all {
		refs, err := r.repo.Branches()
		if err != nil {
			return nil, err
		}
		seen := map[plumbing.Hash]bool{}
		err = refs.ForEach(func(ref *plumbing.Reference) error {
			if !seen[ref.Hash()] {
				seen[ref.Hash()] = true
				hashes = append(hashes, ref.Hash())
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	} else {
		head, err := r.repo.Head()
		if err != nil {
			return nil, err
		}
		hashes = []plumbing.Hash{head.Hash()}
	}

	seenCommit := map[plumbing.Hash]bool{}
	var commits []cidxtypes.Commit
	for _, h := range hashes {
		iter, err := r.repo.Log(&git.LogOptions{From: h, Order: git.LogOrderCommitterTime})
		if err != nil {
			return nil, err
		}
		walkErr := iter.ForEach(func(c *object.Commit) error {
			if seenCommit[c.Hash] {
				return nil
			}
			seenCommit[c.Hash] = true
			if sinceUnix > 0 && c.Committer.When.Unix() < sinceUnix {
				return nil
			}
			var parents []string
			for _, p := range c.ParentHashes {
				parents = append(parents, p.String())
			}
			commits = append(commits, cidxtypes.Commit{
				Hash:         c.Hash.String(),
				Timestamp:    c.Committer.When,
				AuthorName:   c.Author.Name,
				AuthorEmail:  c.Author.Email,
				Message:      c.Message,
				ParentHashes: parents,
			})
			return nil
		})
		iter.Close()
		if walkErr != nil {
			return nil, walkErr
		}
	}

	// "log --reverse": oldest first.
	sort.Slice(commits, func(i, j int) bool { return commits[i].Timestamp.Before(commits[j].Timestamp) })
	if maxCommits > 0 && len(commits) > maxCommits {
		commits = commits[:maxCommits]
	}
	return commits, nil
}

// BlobEntry is one row of "ls-tree -r -l" for a commit.
type BlobEntry struct {
	FilePath string
	BlobHash string
	Size     int64
}

// ListBlobs walks commitHash's tree and returns one entry per regular file,
// per spec.md §4.6 step 4a.
func (r *Repo) ListBlobs(commitHash string) ([]BlobEntry, error) {
	commit, err := r.repo.CommitObject(plumbing.NewHash(commitHash))
	if err != nil {
		return nil, fmt.Errorf("gitscan: commit %s: %w", commitHash, err)
	}
	tree, err := commit.Tree()
	if err != nil {
		return nil, err
	}
	var entries []BlobEntry
	walker := object.NewTreeWalker(tree, true, nil)
	defer walker.Close()
	for {
		name, entry, err := walker.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if !entry.Mode.IsFile() {
			continue
		}
		size, err := tree.Size(name)
		if err != nil {
			size = 0
		}
		entries = append(entries, BlobEntry{FilePath: name, BlobHash: entry.Hash.String(), Size: size})
	}
	return entries, nil
}

// ReadBlob returns the content of blobHash ("cat-file blob").
func (r *Repo) ReadBlob(blobHash string) ([]byte, error) {
	blob, err := r.repo.BlobObject(plumbing.NewHash(blobHash))
	if err != nil {
		return nil, fmt.Errorf("gitscan: blob %s: %w", blobHash, err)
	}
	reader, err := blob.Reader()
	if err != nil {
		return nil, err
	}
	defer reader.Close()
	return io.ReadAll(reader)
}

// CurrentBranch returns the repository's current branch name.
func (r *Repo) CurrentBranch() (string, error) {
	head, err := r.repo.Head()
	if err != nil {
		return "", err
	}
	if !head.Name().IsBranch() {
		return head.Hash().String(), nil
	}
	return head.Name().Short(), nil
}

// BranchesContaining lists every branch whose history includes commitHash
// ("branch --contains <hash>"), per spec.md §4.6 step 4e.
func (r *Repo) BranchesContaining(commitHash string) ([]string, error) {
	target := plumbing.NewHash(commitHash)
	refs, err := r.repo.Branches()
	if err != nil {
		return nil, err
	}
	var branches []string
	err = refs.ForEach(func(ref *plumbing.Reference) error {
		contains, err := r.commitReachableFrom(ref.Hash(), target)
		if err != nil {
			return err
		}
		if contains {
			branches = append(branches, ref.Name().Short())
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(branches)
	return branches, nil
}

func (r *Repo) commitReachableFrom(from, target plumbing.Hash) (bool, error) {
	if from == target {
		return true, nil
	}
	iter, err := r.repo.Log(&git.LogOptions{From: from})
	if err != nil {
		return false, err
	}
	defer iter.Close()
	found := false
	err = iter.ForEach(func(c *object.Commit) error {
		if c.Hash == target {
			found = true
			return storer.ErrStop
		}
		return nil
	})
	if err != nil && err != storer.ErrStop {
		return false, err
	}
	return found, nil
}

// ListBranches lists all local branch names, sorted. It does no pattern
// filtering; callers apply branch patterns to the returned names.
func (r *Repo) ListBranches() ([]string, error) {
	refs, err := r.repo.Branches()
	if err != nil {
		return nil, err
	}
	var names []string
	err = refs.ForEach(func(ref *plumbing.Reference) error {
		names = append(names, ref.Name().Short())
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(names)
	return names, nil
}

// FindCommonAncestorInReflog locates the nearest ancestor of lastCommit that
// is present in candidates, used to decide where to resume indexing after a
// history rewrite per spec.md §4.6 step 3 ("attempt to locate a common
// ancestor; if found, resume from the ancestor"). go-git does not expose a
// uniform typed reflog reader across storage backends, so this walks
// lastCommit's own parent chain instead: a rebase or reset moves a branch
// pointer but does not immediately delete the commits it orphans, so
// lastCommit and its ancestors are typically still resolvable as loose
// objects even once lastCommit itself has dropped out of the newly
// discovered commit set. The walk is breadth-first so the first candidate
// found is the nearest one. Returns "" if lastCommit cannot be resolved at
// all, or if none of its ancestors are in candidates.
func (r *Repo) FindCommonAncestorInReflog(lastCommit string, candidates map[string]bool) (string, error) {
	if strings.TrimSpace(lastCommit) == "" {
		return "", nil
	}
	start, err := r.repo.CommitObject(plumbing.NewHash(lastCommit))
	if err != nil {
		return "", nil // orphaned and already pruned; caller restarts from scratch
	}

	const maxWalk = 10000 // bound the search; spec.md does not require an unbounded walk
	seen := map[plumbing.Hash]bool{start.Hash: true}
	queue := []*object.Commit{start}

	for walked := 0; len(queue) > 0 && walked < maxWalk; walked++ {
		c := queue[0]
		queue = queue[1:]

		if candidates[c.Hash.String()] {
			return c.Hash.String(), nil
		}
		if err := c.Parents().ForEach(func(p *object.Commit) error {
			if !seen[p.Hash] {
				seen[p.Hash] = true
				queue = append(queue, p)
			}
			return nil
		}); err != nil {
			return "", err
		}
	}
	return "", nil
}
