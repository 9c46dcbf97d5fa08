package retrieve

import (
	"errors"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	gocid "github.com/ipfs/go-cid"

	"github.com/opencollab/litemono/internal/cob"
	"github.com/opencollab/litemono/internal/identity"
	"github.com/opencollab/litemono/internal/issue"
	"github.com/opencollab/litemono/internal/store"
)

// testAssigner maps source authors onto pool peers by modulo.
type testAssigner struct {
	pool *identity.Pool
}

func (a *testAssigner) Assign(authorID int64) (*identity.Identity, error) {
	return a.pool.Identity(int(authorID) % a.pool.Size())
}

// countingReader wraps an object store and counts node fetches.
type countingReader struct {
	inner *store.ObjectStore
	reads atomic.Int64
}

func (r *countingReader) Get(c gocid.Cid) ([]byte, error) {
	r.reads.Add(1)
	return r.inner.Get(c)
}

// fixture is a populated object/ref store pair with one imported issue.
type fixture struct {
	objects *countingReader
	refs    *store.RefStore
	assign  *testAssigner
	enc     *cob.Encoded
}

func tstamp(h int) time.Time {
	return time.Date(2024, 7, 1, h, 0, 0, 0, time.UTC)
}

func fixtureIssue() *issue.Issue {
	return &issue.Issue{
		ID: 11, State: "open", Title: "retrieval fixture", Body: "body",
		AuthorID: 0, CreatedAt: tstamp(9), UpdatedAt: tstamp(12),
		Comments: []issue.Comment{
			{ID: 111, AuthorID: 1, Body: "one", CreatedAt: tstamp(10)},
			{ID: 112, AuthorID: 2, Body: "two", CreatedAt: tstamp(11)},
		},
	}
}

func newFixture(t *testing.T, objectID string) *fixture {
	t.Helper()
	dir := t.TempDir()
	objects, err := store.NewObjectStore(filepath.Join(dir, "objects"))
	if err != nil {
		t.Fatal(err)
	}
	refs, err := store.NewRefStore(filepath.Join(dir, "refs"))
	if err != nil {
		t.Fatal(err)
	}
	pool, err := identity.NewPool("retrieve-test", 3)
	if err != nil {
		t.Fatal(err)
	}
	assign := &testAssigner{pool: pool}

	enc, err := cob.EncodeIssue(fixtureIssue(), assign, objectID)
	if err != nil {
		t.Fatal(err)
	}
	f := &fixture{
		objects: &countingReader{inner: objects},
		refs:    refs,
		assign:  assign,
		enc:     enc,
	}
	f.link(t, enc)
	return f
}

// link writes the encoded nodes and points each peer's reference at its tip.
func (f *fixture) link(t *testing.T, enc *cob.Encoded) {
	t.Helper()
	for i := range enc.Nodes {
		if _, err := f.objects.inner.Put(enc.Nodes[i].Data); err != nil {
			t.Fatal(err)
		}
	}
	for peer, tip := range enc.Tips {
		name := store.RefName{Peer: peer, Kind: cob.KindIssue, ObjectID: enc.ObjectID}
		if err := f.refs.Set(name, tip); err != nil {
			t.Fatal(err)
		}
	}
}

// extend appends one comment node on top of a tip and advances that peer's
// reference, simulating a later import touching the same object.
func (f *fixture) extend(t *testing.T, objectID string) {
	t.Helper()
	last := f.enc.Nodes[len(f.enc.Nodes)-1]
	peer := last.Node.Peer
	n := cob.Node{
		V: 1, Object: objectID, Peer: peer, Op: cob.OpCommentAdd,
		Parents:   []string{store.CIDToString(last.CID)},
		Timestamp: tstamp(15), Seq: 199,
		Payload: cob.Payload{Body: "late addition", CommentID: 199, AuthorID: 2},
	}
	data, c, err := n.Encode()
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.objects.inner.Put(data); err != nil {
		t.Fatal(err)
	}
	name := store.RefName{Peer: peer, Kind: cob.KindIssue, ObjectID: objectID}
	if err := f.refs.Set(name, c); err != nil {
		t.Fatal(err)
	}
}

func TestEngine_Retrieve(t *testing.T) {
	f := newFixture(t, "obj-engine")
	e := NewEngine(f.objects, f.refs)

	st, err := e.Retrieve("obj-engine")
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if st.Title != "retrieval fixture" {
		t.Errorf("title = %q", st.Title)
	}
	if len(st.Comments) != 2 {
		t.Fatalf("got %d comments, want 2", len(st.Comments))
	}
	if st.Comments[0].ID != 111 || st.Comments[1].ID != 112 {
		t.Errorf("comment order: %d, %d", st.Comments[0].ID, st.Comments[1].ID)
	}
}

func TestEngine_RetrieveMissing(t *testing.T) {
	f := newFixture(t, "obj-present")
	e := NewEngine(f.objects, f.refs)

	_, err := e.Retrieve("obj-absent")
	if !errors.Is(err, ErrObjectNotFound) {
		t.Errorf("Retrieve = %v, want ErrObjectNotFound", err)
	}
}

func TestEngine_DescribeGraph(t *testing.T) {
	f := newFixture(t, "obj-graph")
	e := NewEngine(f.objects, f.refs)

	desc, err := e.DescribeGraph("obj-graph")
	if err != nil {
		t.Fatalf("DescribeGraph: %v", err)
	}
	if len(desc.Nodes) != len(f.enc.Nodes) {
		t.Errorf("got %d graph nodes, want %d", len(desc.Nodes), len(f.enc.Nodes))
	}
	if len(desc.Tips) != len(f.enc.Tips) {
		t.Errorf("got %d tips, want %d", len(desc.Tips), len(f.enc.Tips))
	}
	// Root appears with no incoming parent edges.
	rootEdges := 0
	rootCID := store.CIDToString(f.enc.Nodes[0].CID)
	for _, edge := range desc.Edges {
		if edge.From == rootCID {
			rootEdges++
		}
	}
	if rootEdges != 0 {
		t.Errorf("root has %d parent edges", rootEdges)
	}
}

func TestFingerprint(t *testing.T) {
	c1, err := store.ComputeCID([]byte("one"))
	if err != nil {
		t.Fatal(err)
	}
	c2, err := store.ComputeCID([]byte("two"))
	if err != nil {
		t.Fatal(err)
	}

	a := Fingerprint(map[string]gocid.Cid{"did:key:zA": c1, "did:key:zB": c2})
	b := Fingerprint(map[string]gocid.Cid{"did:key:zB": c2, "did:key:zA": c1})
	if a != b {
		t.Error("fingerprint depends on map iteration order")
	}

	moved := Fingerprint(map[string]gocid.Cid{"did:key:zA": c2, "did:key:zB": c2})
	if moved == a {
		t.Error("fingerprint unchanged after a tip moved")
	}

	fewer := Fingerprint(map[string]gocid.Cid{"did:key:zA": c1})
	if fewer == a {
		t.Error("fingerprint unchanged after a peer dropped")
	}
}
