// Package store is the shared document store every table participant reads
// and writes. Documents live in collections addressed by slash-separated
// paths ("games", "games/{room}/players"); each document is a flat map of
// JSON-compatible fields.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
)

var (
	// ErrNotFound is returned when a document does not exist.
	ErrNotFound = errors.New("store: not found")

	// ErrPreconditionFailed is returned when a guarded write lost a race:
	// the guarded field no longer holds the expected value.
	ErrPreconditionFailed = errors.New("store: precondition failed")
)

// Document is a set of top-level fields. Values are normalized to the shapes
// encoding/json produces (float64, string, bool, nil, []any, map[string]any)
// so every Store implementation hands back identical documents.
type Document map[string]any

// Snapshot is a single document as observed by a subscriber.
type Snapshot struct {
	ID     string   `json:"id"`
	Doc    Document `json:"doc,omitempty"`
	Exists bool     `json:"exists"`
}

// Precondition guards a write. The write commits only when the document's
// Field currently equals Value (a missing field equals nil). With Absent set
// the document must not exist at all.
type Precondition struct {
	Field  string `json:"field,omitempty"`
	Value  any    `json:"value"`
	Absent bool   `json:"absent,omitempty"`
}

// Holds reports whether doc satisfies the precondition. doc is nil when the
// document does not exist.
func (p Precondition) Holds(doc Document) bool {
	if p.Absent {
		return doc == nil
	}
	if doc == nil {
		return false
	}
	want, err := normalizeValue(p.Value)
	if err != nil {
		return false
	}
	return reflect.DeepEqual(doc[p.Field], want)
}

// OpKind identifies a mutation.
type OpKind string

const (
	OpWrite   OpKind = "write"   // merge fields, creating the document if needed
	OpReplace OpKind = "replace" // overwrite the whole document
	OpDelete  OpKind = "delete"  // remove the document; missing documents are ignored
	OpCheck   OpKind = "check"   // assert the precondition without writing
)

// Op is one mutation in a commit. Ops in a commit apply all-or-nothing.
type Op struct {
	Kind   OpKind        `json:"kind"`
	Path   string        `json:"path"`
	ID     string        `json:"id"`
	Fields Document      `json:"fields,omitempty"`
	Cond   *Precondition `json:"cond,omitempty"`
}

// Unsubscribe stops a subscription. It is safe to call more than once.
type Unsubscribe func()

// Store is the document store contract.
type Store interface {
	Read(ctx context.Context, path, id string) (Document, error)
	// Query returns every document in a collection keyed by id.
	Query(ctx context.Context, path string) (map[string]Document, error)
	Write(ctx context.Context, path, id string, fields Document) error
	WriteIf(ctx context.Context, path, id string, cond Precondition, fields Document) error
	Replace(ctx context.Context, path, id string, doc Document) error
	Delete(ctx context.Context, path, id string) error

	// Subscribe delivers the document's current state and then every change,
	// one notification at a time, until unsubscribed or ctx is done. onError
	// receives transport failures; it may be nil.
	Subscribe(ctx context.Context, path, id string, onChange func(Snapshot), onError func(error)) (Unsubscribe, error)
	// SubscribeCollection is Subscribe for every document in a collection.
	SubscribeCollection(ctx context.Context, path string, onChange func(map[string]Document), onError func(error)) (Unsubscribe, error)

	// Commit applies ops atomically.
	Commit(ctx context.Context, ops []Op) error
	// Batch starts a group of ops committed together.
	Batch() *Batch
}

// Batch collects ops for a single Commit.
type Batch struct {
	store Store
	ops   []Op
}

// NewBatch returns an empty batch committing to s.
func NewBatch(s Store) *Batch {
	return &Batch{store: s}
}

func (b *Batch) Write(path, id string, fields Document) *Batch {
	b.ops = append(b.ops, Op{Kind: OpWrite, Path: path, ID: id, Fields: fields})
	return b
}

func (b *Batch) WriteIf(path, id string, cond Precondition, fields Document) *Batch {
	b.ops = append(b.ops, Op{Kind: OpWrite, Path: path, ID: id, Fields: fields, Cond: &cond})
	return b
}

func (b *Batch) Replace(path, id string, doc Document) *Batch {
	b.ops = append(b.ops, Op{Kind: OpReplace, Path: path, ID: id, Fields: doc})
	return b
}

func (b *Batch) Delete(path, id string) *Batch {
	b.ops = append(b.ops, Op{Kind: OpDelete, Path: path, ID: id})
	return b
}

// Check adds a precondition that must hold for the batch to commit.
func (b *Batch) Check(path, id string, cond Precondition) *Batch {
	b.ops = append(b.ops, Op{Kind: OpCheck, Path: path, ID: id, Cond: &cond})
	return b
}

// Ops returns the collected ops.
func (b *Batch) Ops() []Op {
	return b.ops
}

// Len returns the number of collected ops.
func (b *Batch) Len() int {
	return len(b.ops)
}

// Commit applies the batch. An empty batch is a no-op.
func (b *Batch) Commit(ctx context.Context) error {
	if len(b.ops) == 0 {
		return nil
	}
	return b.store.Commit(ctx, b.ops)
}

// Guarded is the read-guard-write primitive: it reads path/id, passes the
// document to plan, and commits the ops plan returns only if field still
// holds the value that was read. A lost race returns ErrPreconditionFailed.
func Guarded(ctx context.Context, s Store, path, id, field string, plan func(doc Document) ([]Op, error)) error {
	doc, err := s.Read(ctx, path, id)
	if err != nil {
		return err
	}
	ops, err := plan(doc)
	if err != nil {
		return err
	}
	if len(ops) == 0 {
		return nil
	}
	guard := Op{Kind: OpCheck, Path: path, ID: id, Cond: &Precondition{Field: field, Value: doc[field]}}
	return s.Commit(ctx, append([]Op{guard}, ops...))
}

// Encode converts a tagged struct into a Document.
func Encode(v any) (Document, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	return doc, nil
}

// Decode fills v from doc using v's json tags.
func Decode(doc Document, v any) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("decode document: %w", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode document: %w", err)
	}
	return nil
}

// Normalize returns a deep copy of doc in canonical JSON shapes.
func Normalize(doc Document) (Document, error) {
	if doc == nil {
		return Document{}, nil
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("normalize document: %w", err)
	}
	var out Document
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("normalize document: %w", err)
	}
	if out == nil {
		out = Document{}
	}
	return out, nil
}

func normalizeValue(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Clone deep-copies a normalized document.
func (d Document) Clone() Document {
	if d == nil {
		return nil
	}
	out := make(Document, len(d))
	for k, v := range d {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		m := make(map[string]any, len(t))
		for k, vv := range t {
			m[k] = cloneValue(vv)
		}
		return m
	case Document:
		return map[string]any(t.Clone())
	case []any:
		s := make([]any, len(t))
		for i, vv := range t {
			s[i] = cloneValue(vv)
		}
		return s
	default:
		return v
	}
}

// String returns the field as a string, or "" if absent or not a string.
func (d Document) String(field string) string {
	s, _ := d[field].(string)
	return s
}

// Int returns a numeric field truncated to int.
func (d Document) Int(field string) int {
	switch n := d[field].(type) {
	case float64:
		return int(n)
	case int:
		return n
	case int64:
		return int(n)
	default:
		return 0
	}
}

// Bool returns a boolean field.
func (d Document) Bool(field string) bool {
	b, _ := d[field].(bool)
	return b
}
