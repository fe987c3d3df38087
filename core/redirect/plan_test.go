package redirect

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

// fakeHandle names its origin so tests can see where a slot points.
type fakeHandle struct {
	path   string
	closed bool
}

func (h *fakeHandle) Close() error {
	h.closed = true
	return nil
}

// fakeSystem counts opens and dups, the property the whole package is
// built to demonstrate.
type fakeSystem struct {
	opens   []string // paths, in order
	dups    int
	failOn  string
	openErr error
}

func (s *fakeSystem) Open(path string, flags int, perm os.FileMode) (Handle, error) {
	if path == s.failOn {
		return nil, s.openErr
	}
	s.opens = append(s.opens, path)
	return &fakeHandle{path: path}, nil
}

func (s *fakeSystem) Dup(h Handle) (Handle, error) {
	s.dups++
	return &fakeHandle{path: h.(*fakeHandle).path}, nil
}

func stdioTable() Table {
	return Table{
		0: &fakeHandle{path: "<stdin>"},
		1: &fakeHandle{path: "<stdout>"},
		2: &fakeHandle{path: "<stderr>"},
	}
}

func mustParse(t *testing.T, tokens ...string) Plan {
	t.Helper()
	_, plan, err := Parse(tokens)
	if err != nil {
		t.Fatal(err)
	}
	return plan
}

func TestApplyDupNeverOpens(t *testing.T) {
	sys := &fakeSystem{}
	table := stdioTable()

	plan := mustParse(t, "cmd", "2>&1")
	_, err := plan.Apply(sys, table, nil)

	assert.NoError(t, err)
	assert.Empty(t, sys.opens, "a dup must not open or truncate anything")
	assert.Equal(t, 1, sys.dups)
	assert.Equal(t, "<stdout>", table[2].(*fakeHandle).path)
}

func TestApplyOpensOncePerRedirection(t *testing.T) {
	sys := &fakeSystem{}
	table := stdioTable()

	// One open for the target, no matter how much the child writes
	// afterwards; the dup shares the same description.
	plan := mustParse(t, "cmd", ">out", "2>&1")
	_, err := plan.Apply(sys, table, nil)

	assert.NoError(t, err)
	assert.Equal(t, []string{"out"}, sys.opens)
	assert.Equal(t, 1, sys.dups)
	assert.Equal(t, "out", table[1].(*fakeHandle).path)
	assert.Equal(t, "out", table[2].(*fakeHandle).path)
}

func TestApplyOrderMatters(t *testing.T) {
	// ">f 2>&1" sends both streams to f, while "2>&1 >f" points stderr
	// at the old stdout before stdout moves.
	t.Run("file then dup", func(t *testing.T) {
		table := stdioTable()
		_, err := mustParse(t, "cmd", ">f", "2>&1").Apply(&fakeSystem{}, table, nil)
		assert.NoError(t, err)
		assert.Equal(t, "f", table[1].(*fakeHandle).path)
		assert.Equal(t, "f", table[2].(*fakeHandle).path)
	})

	t.Run("dup then file", func(t *testing.T) {
		table := stdioTable()
		_, err := mustParse(t, "cmd", "2>&1", ">f").Apply(&fakeSystem{}, table, nil)
		assert.NoError(t, err)
		assert.Equal(t, "f", table[1].(*fakeHandle).path)
		assert.Equal(t, "<stdout>", table[2].(*fakeHandle).path)
	})
}

func TestApplyClose(t *testing.T) {
	table := stdioTable()
	stderr := table[2].(*fakeHandle)

	_, err := mustParse(t, "cmd", "2>&-").Apply(&fakeSystem{}, table, nil)

	assert.NoError(t, err)
	_, present := table[2]
	assert.False(t, present)
	assert.False(t, stderr.closed, "inherited stdio must survive the child's close")
}

func TestApplyBadDescriptor(t *testing.T) {
	table := stdioTable()

	_, err := mustParse(t, "cmd", "<&7").Apply(&fakeSystem{}, table, nil)

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "bad file descriptor")
}

func TestApplyOpenErrorClosesCreated(t *testing.T) {
	sys := &fakeSystem{failOn: "denied", openErr: os.ErrPermission}
	table := stdioTable()

	plan := mustParse(t, "cmd", ">ok", "2>denied")
	created, err := plan.Apply(sys, table, nil)

	assert.Error(t, err)
	assert.Nil(t, created)
	assert.True(t, table[1].(*fakeHandle).closed, "handle from the earlier open should be closed")
}

func TestApplyObserver(t *testing.T) {
	var seen []Op
	table := stdioTable()

	_, err := mustParse(t, "cmd", ">f", "2>&1").Apply(&fakeSystem{}, table, func(a Action) {
		seen = append(seen, a.Op)
	})

	assert.NoError(t, err)
	assert.Equal(t, []Op{OpOpen, OpDup}, seen)
}
