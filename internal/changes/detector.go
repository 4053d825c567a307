package changes

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/dshills/codegraph-mcp/internal/selector"
)

// hashChunkSize bounds the memory used while hashing a file
const hashChunkSize = 64 * 1024

// Hash is a SHA-256 content digest
type Hash [32]byte

func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

// HashFile computes the SHA-256 of a file, reading it in fixed-size chunks
func HashFile(path string) (Hash, error) {
	file, err := os.Open(path)
	if err != nil {
		return Hash{}, err
	}
	defer func() { _ = file.Close() }()

	h := sha256.New()
	buf := make([]byte, hashChunkSize)
	if _, err := io.CopyBuffer(h, file, buf); err != nil {
		return Hash{}, err
	}

	var result Hash
	copy(result[:], h.Sum(nil))
	return result, nil
}

// HashStore persists the last indexed hash of every file, per repository
type HashStore interface {
	LoadHashes(ctx context.Context, repo string) (map[string]Hash, error)
	PutHash(ctx context.Context, repo, path string, hash Hash) error
	DeleteHash(ctx context.Context, repo, path string) error
	ResetHashes(ctx context.Context, repo string) error
}

// FileChange is one file of the current eligible set that needs work
type FileChange struct {
	selector.Candidate
	Hash Hash
}

// ChangeSet classifies the eligible files of a repository against the last run
type ChangeSet struct {
	Added     []FileChange
	Modified  []FileChange
	Deleted   []string
	Unchanged []string
	// Failed maps paths whose content could not be hashed to the read error
	Failed map[string]error
}

// Empty reports whether the change set has no work
func (cs *ChangeSet) Empty() bool {
	return len(cs.Added) == 0 && len(cs.Modified) == 0 && len(cs.Deleted) == 0 && len(cs.Failed) == 0
}

// Detector classifies files by comparing content hashes with the HashStore.
// Detect never writes to the store; callers record a path with Commit only
// after its projection succeeded.
type Detector struct {
	store HashStore
}

// NewDetector creates a Detector backed by store
func NewDetector(store HashStore) *Detector {
	return &Detector{store: store}
}

// Detect hashes every candidate and classifies it. Paths previously recorded
// for repo but absent from candidates are reported as deleted.
func (d *Detector) Detect(ctx context.Context, repo string, candidates []selector.Candidate) (*ChangeSet, error) {
	previous, err := d.store.LoadHashes(ctx, repo)
	if err != nil {
		return nil, fmt.Errorf("failed to load file hashes: %w", err)
	}

	cs := &ChangeSet{Failed: make(map[string]error)}
	current := make(map[string]struct{}, len(candidates))

	for _, c := range candidates {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		current[c.RelPath] = struct{}{}

		hash, err := HashFile(c.AbsPath)
		if err != nil {
			cs.Failed[c.RelPath] = err
			continue
		}

		old, seen := previous[c.RelPath]
		switch {
		case !seen:
			cs.Added = append(cs.Added, FileChange{Candidate: c, Hash: hash})
		case old != hash:
			cs.Modified = append(cs.Modified, FileChange{Candidate: c, Hash: hash})
		default:
			cs.Unchanged = append(cs.Unchanged, c.RelPath)
		}
	}

	for path := range previous {
		if _, ok := current[path]; !ok {
			cs.Deleted = append(cs.Deleted, path)
		}
	}

	sortChanges(cs.Added)
	sortChanges(cs.Modified)
	sort.Strings(cs.Deleted)
	sort.Strings(cs.Unchanged)
	return cs, nil
}

// Commit records the hash of a successfully projected file
func (d *Detector) Commit(ctx context.Context, repo, path string, hash Hash) error {
	return d.store.PutHash(ctx, repo, path, hash)
}

// Forget removes a path so the next run treats it as unindexed
func (d *Detector) Forget(ctx context.Context, repo, path string) error {
	return d.store.DeleteHash(ctx, repo, path)
}

// Reset drops all recorded hashes of a repository
func (d *Detector) Reset(ctx context.Context, repo string) error {
	return d.store.ResetHashes(ctx, repo)
}

func sortChanges(changes []FileChange) {
	sort.Slice(changes, func(i, j int) bool { return changes[i].RelPath < changes[j].RelPath })
}
