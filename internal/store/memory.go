package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
)

// Memory is an in-process Store. It backs tests, single-process simulations
// and the document server that remote clients connect to.
type Memory struct {
	mu          sync.Mutex
	collections map[string]map[string]Document
	subscribers map[uint64]*subscriber
	nextSubID   uint64
	logger      *log.Logger
}

var _ Store = (*Memory)(nil)

// NewMemory returns an empty store.
func NewMemory(logger *log.Logger) *Memory {
	return &Memory{
		collections: make(map[string]map[string]Document),
		subscribers: make(map[uint64]*subscriber),
		logger:      logger.WithPrefix("store"),
	}
}

func validPath(path, id string) error {
	if path == "" || strings.HasPrefix(path, "/") || strings.HasSuffix(path, "/") {
		return fmt.Errorf("invalid collection path %q", path)
	}
	if id == "" || strings.Contains(id, "/") {
		return fmt.Errorf("invalid document id %q", id)
	}
	return nil
}

func (m *Memory) Read(ctx context.Context, path, id string) (Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := validPath(path, id); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.collections[path][id]
	if !ok {
		return nil, fmt.Errorf("%s/%s: %w", path, id, ErrNotFound)
	}
	return doc.Clone(), nil
}

func (m *Memory) Query(ctx context.Context, path string) (map[string]Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.collectionLocked(path), nil
}

func (m *Memory) collectionLocked(path string) map[string]Document {
	out := make(map[string]Document, len(m.collections[path]))
	for id, doc := range m.collections[path] {
		out[id] = doc.Clone()
	}
	return out
}

func (m *Memory) Write(ctx context.Context, path, id string, fields Document) error {
	return m.Commit(ctx, []Op{{Kind: OpWrite, Path: path, ID: id, Fields: fields}})
}

func (m *Memory) WriteIf(ctx context.Context, path, id string, cond Precondition, fields Document) error {
	return m.Commit(ctx, []Op{{Kind: OpWrite, Path: path, ID: id, Fields: fields, Cond: &cond}})
}

func (m *Memory) Replace(ctx context.Context, path, id string, doc Document) error {
	return m.Commit(ctx, []Op{{Kind: OpReplace, Path: path, ID: id, Fields: doc}})
}

func (m *Memory) Delete(ctx context.Context, path, id string) error {
	return m.Commit(ctx, []Op{{Kind: OpDelete, Path: path, ID: id}})
}

func (m *Memory) Batch() *Batch {
	return NewBatch(m)
}

type docKey struct {
	path, id string
}

// Commit validates every op and its precondition against a staged view of
// the store, then applies them together and notifies subscribers once per
// touched document and collection.
func (m *Memory) Commit(ctx context.Context, ops []Op) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	normalized := make([]Op, len(ops))
	for i, op := range ops {
		if err := validPath(op.Path, op.ID); err != nil {
			return err
		}
		if op.Kind == OpWrite || op.Kind == OpReplace {
			fields, err := Normalize(op.Fields)
			if err != nil {
				return err
			}
			op.Fields = fields
		}
		normalized[i] = op
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	staged := make(map[docKey]Document)
	lookup := func(k docKey) Document {
		if doc, ok := staged[k]; ok {
			return doc
		}
		if doc, ok := m.collections[k.path][k.id]; ok {
			return doc
		}
		return nil
	}

	var touched []docKey
	for _, op := range normalized {
		k := docKey{op.Path, op.ID}
		current := lookup(k)
		if op.Cond != nil && !op.Cond.Holds(current) {
			return fmt.Errorf("%s/%s %s: %w", op.Path, op.ID, op.Cond.Field, ErrPreconditionFailed)
		}

		switch op.Kind {
		case OpCheck:
			continue
		case OpWrite:
			next := current.Clone()
			if next == nil {
				next = Document{}
			}
			for f, v := range op.Fields {
				next[f] = v
			}
			staged[k] = next
		case OpReplace:
			staged[k] = op.Fields
		case OpDelete:
			if current == nil {
				continue
			}
			staged[k] = nil
		default:
			return fmt.Errorf("unknown op kind %q", op.Kind)
		}
		touched = append(touched, k)
	}

	for k, doc := range staged {
		if doc == nil {
			delete(m.collections[k.path], k.id)
			if len(m.collections[k.path]) == 0 {
				delete(m.collections, k.path)
			}
			continue
		}
		if m.collections[k.path] == nil {
			m.collections[k.path] = make(map[string]Document)
		}
		m.collections[k.path][k.id] = doc
	}

	m.notifyLocked(touched)
	return nil
}

func (m *Memory) notifyLocked(touched []docKey) {
	if len(touched) == 0 || len(m.subscribers) == 0 {
		return
	}
	docs := make(map[docKey]bool, len(touched))
	paths := make(map[string]bool)
	for _, k := range touched {
		docs[k] = true
		paths[k.path] = true
	}

	// Deliver in subscription order so notifications are reproducible.
	ids := make([]uint64, 0, len(m.subscribers))
	for id := range m.subscribers {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	for _, id := range ids {
		sub := m.subscribers[id]
		switch {
		case sub.docID != "" && docs[docKey{sub.path, sub.docID}]:
			snap := m.snapshotLocked(sub.path, sub.docID)
			sub.Push(func() { sub.onDoc(snap) })
		case sub.docID == "" && paths[sub.path]:
			coll := m.collectionLocked(sub.path)
			sub.Push(func() { sub.onCollection(coll) })
		}
	}
}

func (m *Memory) snapshotLocked(path, id string) Snapshot {
	doc, ok := m.collections[path][id]
	if !ok {
		return Snapshot{ID: id}
	}
	return Snapshot{ID: id, Doc: doc.Clone(), Exists: true}
}

func (m *Memory) Subscribe(ctx context.Context, path, id string, onChange func(Snapshot), _ func(error)) (Unsubscribe, error) {
	if err := validPath(path, id); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextSubID++
	sub := newSubscriber(m.nextSubID, path, id)
	sub.onDoc = onChange
	m.subscribers[sub.id] = sub

	snap := m.snapshotLocked(path, id)
	sub.Push(func() { onChange(snap) })
	m.logger.Debug("Subscribed", "path", path, "id", id, "sub", sub.id)
	return m.unsubscriber(ctx, sub), nil
}

func (m *Memory) SubscribeCollection(ctx context.Context, path string, onChange func(map[string]Document), _ func(error)) (Unsubscribe, error) {
	if err := validPath(path, "x"); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextSubID++
	sub := newSubscriber(m.nextSubID, path, "")
	sub.onCollection = onChange
	m.subscribers[sub.id] = sub

	coll := m.collectionLocked(path)
	sub.Push(func() { onChange(coll) })
	m.logger.Debug("Subscribed to collection", "path", path, "sub", sub.id)
	return m.unsubscriber(ctx, sub), nil
}

// unsubscriber also tears the subscription down when ctx ends.
func (m *Memory) unsubscriber(ctx context.Context, sub *subscriber) Unsubscribe {
	var once sync.Once
	unsub := func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.subscribers, sub.id)
			m.mu.Unlock()
			sub.Stop()
		})
	}
	if ctx.Done() != nil {
		go func() {
			select {
			case <-ctx.Done():
				unsub()
			case <-sub.Done():
			}
		}()
	}
	return unsub
}

// Close stops every subscription.
func (m *Memory) Close() {
	m.mu.Lock()
	subs := m.subscribers
	m.subscribers = make(map[uint64]*subscriber)
	m.mu.Unlock()
	for _, sub := range subs {
		sub.Stop()
	}
}

// Collections lists every non-empty collection path.
func (m *Memory) Collections() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	paths := make([]string, 0, len(m.collections))
	for p := range m.collections {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}
