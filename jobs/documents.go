// Package jobs implements the fixed catalog of periodic jobs (ingestion,
// aggregation, snapshotting, reputation, graph building, ML accuracy
// checks, and housekeeping) registered against the Scheduler at
// startup. Handlers are thin: each owns its own side effects by
// calling through narrow collaborator interfaces, never touching the
// execution core's internals directly except to enqueue work.
package jobs

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// Transfer is a blockchain value movement produced by ingestion jobs.
type Transfer struct {
	Hash      string
	Chain     string
	From      string
	To        string
	Asset     string
	Amount    float64
	BlockTime time.Time
}

// SocialPost is a social-media mention produced by ingestion jobs,
// including posts harvested via the parser execution core's
// account_tweets/account_followers tasks.
type SocialPost struct {
	Platform        string
	AuthorID        string
	PostID          string
	Text            string
	PostedAt        time.Time
	EngagementScore float64
}

// Signal is a derived metric keyed by (subjectID, kind, window),
// produced by aggregation jobs.
type Signal struct {
	SubjectID  string
	Kind       string
	Window     string
	Value      float64
	ComputedAt time.Time
}

// ReputationScore is produced by reputation jobs.
type ReputationScore struct {
	SubjectID  string
	Score      float64
	Tier       string
	ComputedAt time.Time
}

// GraphEdge is produced by graph builder jobs from Transfers.
type GraphEdge struct {
	FromSubjectID string
	ToSubjectID   string
	Weight        float64
	Kind          string
}

// ModelCheck is produced by ML accuracy/drift jobs.
type ModelCheck struct {
	ModelName  string
	Accuracy   float64
	DriftScore float64
	CheckedAt  time.Time
}

// DocumentStore is the natural-key upsert + count interface every job
// handler writes through. Schemas are not this interface's concern
// beyond "upsert by natural key" and "count by predicate."
type DocumentStore interface {
	UpsertTransfer(ctx context.Context, t Transfer) error
	UpsertSocialPost(ctx context.Context, p SocialPost) error
	UpsertSignal(ctx context.Context, s Signal) error
	UpsertReputationScore(ctx context.Context, r ReputationScore) error
	UpsertGraphEdge(ctx context.Context, e GraphEdge) error
	UpsertModelCheck(ctx context.Context, m ModelCheck) error

	ListTransfers(ctx context.Context, chain string, since time.Time) ([]Transfer, error)
	ListSocialPosts(ctx context.Context, since time.Time) ([]SocialPost, error)
	CountReputationScores(ctx context.Context, tier string) (int, error)
	ListReputationScores(ctx context.Context, tier string) ([]ReputationScore, error)
	// ListSubjectIDs returns every subject with at least one recorded
	// signal, the universe reputation.* jobs recompute over.
	ListSubjectIDs(ctx context.Context) ([]string, error)
	ListSignalsForSubject(ctx context.Context, subjectID string) ([]Signal, error)
	ListGraphEdges(ctx context.Context) ([]GraphEdge, error)
	DeleteGraphEdge(ctx context.Context, fromSubjectID, toSubjectID, kind string) error
}

// Notifier is the narrow side-channel jobs use to surface noteworthy
// events (e.g. a drift check crossing a threshold) without coupling to
// any particular transport.
type Notifier interface {
	Notify(ctx context.Context, subject, message string) error
}

// ScoreEngine computes derived scores from raw signals; it is the
// collaborator reputation.* and ml.* jobs call through, kept separate
// from DocumentStore since scoring logic is a distinct concern from
// persistence.
type ScoreEngine interface {
	ComputeReputationScore(ctx context.Context, subjectID string, signals []Signal) (float64, error)
	CheckModelAccuracy(ctx context.Context, modelName string) (accuracy, driftScore float64, err error)
}

// MemoryDocuments is an in-process DocumentStore backed by maps,
// mirroring store.MemoryStore's RWMutex-guarded-map shape. It is the
// default backend for tests and local runs.
type MemoryDocuments struct {
	mu        sync.RWMutex
	transfers map[string]Transfer // keyed by hash
	posts     map[string]SocialPost // keyed by platform+postID
	signals   map[string]Signal // keyed by subjectID+kind+window
	scores    map[string]ReputationScore // keyed by subjectID
	edges     map[string]GraphEdge // keyed by from+to+kind
	models    map[string]ModelCheck // keyed by modelName
}

func NewMemoryDocuments() *MemoryDocuments {
	return &MemoryDocuments{
		transfers: make(map[string]Transfer),
		posts:     make(map[string]SocialPost),
		signals:   make(map[string]Signal),
		scores:    make(map[string]ReputationScore),
		edges:     make(map[string]GraphEdge),
		models:    make(map[string]ModelCheck),
	}
}

func (m *MemoryDocuments) UpsertTransfer(ctx context.Context, t Transfer) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transfers[t.Hash] = t
	return nil
}

func (m *MemoryDocuments) UpsertSocialPost(ctx context.Context, p SocialPost) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.posts[p.Platform+":"+p.PostID] = p
	return nil
}

func (m *MemoryDocuments) UpsertSignal(ctx context.Context, s Signal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.signals[fmt.Sprintf("%s:%s:%s", s.SubjectID, s.Kind, s.Window)] = s
	return nil
}

func (m *MemoryDocuments) UpsertReputationScore(ctx context.Context, r ReputationScore) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scores[r.SubjectID] = r
	return nil
}

func (m *MemoryDocuments) UpsertGraphEdge(ctx context.Context, e GraphEdge) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.edges[fmt.Sprintf("%s:%s:%s", e.FromSubjectID, e.ToSubjectID, e.Kind)] = e
	return nil
}

func (m *MemoryDocuments) UpsertModelCheck(ctx context.Context, c ModelCheck) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.models[c.ModelName] = c
	return nil
}

func (m *MemoryDocuments) ListTransfers(ctx context.Context, chain string, since time.Time) ([]Transfer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Transfer, 0)
	for _, t := range m.transfers {
		if t.Chain == chain && !t.BlockTime.Before(since) {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].BlockTime.Before(out[j].BlockTime) })
	return out, nil
}

func (m *MemoryDocuments) ListSocialPosts(ctx context.Context, since time.Time) ([]SocialPost, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]SocialPost, 0)
	for _, p := range m.posts {
		if !p.PostedAt.Before(since) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PostedAt.Before(out[j].PostedAt) })
	return out, nil
}

func (m *MemoryDocuments) CountReputationScores(ctx context.Context, tier string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, s := range m.scores {
		if s.Tier == tier {
			n++
		}
	}
	return n, nil
}

func (m *MemoryDocuments) ListReputationScores(ctx context.Context, tier string) ([]ReputationScore, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]ReputationScore, 0)
	for _, s := range m.scores {
		if s.Tier == tier {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SubjectID < out[j].SubjectID })
	return out, nil
}

func (m *MemoryDocuments) ListSubjectIDs(ctx context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	seen := make(map[string]struct{})
	for _, s := range m.signals {
		seen[s.SubjectID] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sort.Strings(out)
	return out, nil
}

func (m *MemoryDocuments) ListSignalsForSubject(ctx context.Context, subjectID string) ([]Signal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Signal, 0)
	for _, s := range m.signals {
		if s.SubjectID == subjectID {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Kind < out[j].Kind })
	return out, nil
}

func (m *MemoryDocuments) ListGraphEdges(ctx context.Context) ([]GraphEdge, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]GraphEdge, 0, len(m.edges))
	for _, e := range m.edges {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].FromSubjectID != out[j].FromSubjectID {
			return out[i].FromSubjectID < out[j].FromSubjectID
		}
		return out[i].ToSubjectID < out[j].ToSubjectID
	})
	return out, nil
}

func (m *MemoryDocuments) DeleteGraphEdge(ctx context.Context, fromSubjectID, toSubjectID, kind string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.edges, fmt.Sprintf("%s:%s:%s", fromSubjectID, toSubjectID, kind))
	return nil
}
