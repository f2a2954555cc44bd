package ime

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kanaime/internal/romaji"
)

func TestSessionManagerOpenClose(t *testing.T) {
	m := NewSessionManager(NewFactory(FactoryOptions{}))

	s := m.Open(SessionOptions{})
	assert.NotEmpty(t, s.ID)
	assert.Equal(t, "unknown", s.AppID)
	assert.Equal(t, "default", s.DocID)
	assert.Equal(t, 1, m.Len())

	got, ok := m.Get(s.ID)
	require.True(t, ok)
	assert.Same(t, s, got)

	s.Engine.Step('k')
	cmds, err := m.Close(s.ID)
	require.NoError(t, err)
	assert.Equal(t, []Command{{Text: "k", Kind: CommitVerbatim, Source: "k"}}, cmds)
	assert.Zero(t, m.Len())

	_, err = m.Close(s.ID)
	assert.ErrorIs(t, err, ErrNoSession)
}

func TestSessionManagerEnginesAreSeparate(t *testing.T) {
	m := NewSessionManager(NewFactory(FactoryOptions{}))
	a := m.Open(SessionOptions{AppID: "a"})
	b := m.Open(SessionOptions{AppID: "b"})

	assert.NotSame(t, a.Engine, b.Engine)
	a.Engine.Step('k')
	assert.Equal(t, StatePending, a.Engine.State())
	assert.Equal(t, StateEmpty, b.Engine.State())
}

func TestSessionManagerDescribe(t *testing.T) {
	m := NewSessionManager(NewFactory(FactoryOptions{}))
	s := m.Open(SessionOptions{AppID: "gedit", DocID: "notes.txt"})

	require.NoError(t, m.Describe(s.ID, SessionOptions{DocID: "todo.txt"}))
	assert.Equal(t, "gedit", s.AppID)
	assert.Equal(t, "todo.txt", s.DocID)

	assert.ErrorIs(t, m.Describe("missing", SessionOptions{}), ErrNoSession)
}

func TestSessionManagerSetFactory(t *testing.T) {
	m := NewSessionManager(NewFactory(FactoryOptions{}))
	old := m.Open(SessionOptions{})

	next := NewFactory(FactoryOptions{Dictionary: romaji.Default().InScript(romaji.ScriptKatakana)})
	m.SetFactory(next)
	assert.Same(t, next, m.Factory())

	fresh := m.Open(SessionOptions{})
	old.Engine.Step('k')
	assert.Equal(t, "か", old.Engine.Step('a')[0].Text)
	fresh.Engine.Step('k')
	assert.Equal(t, "カ", fresh.Engine.Step('a')[0].Text)
}

func TestSessionManagerInfo(t *testing.T) {
	m := NewSessionManager(NewFactory(FactoryOptions{}))
	first := m.Open(SessionOptions{AppID: "first"})
	m.Open(SessionOptions{AppID: "second"})
	first.Engine.Step('s')

	info := m.Info()
	require.Len(t, info, 2)
	assert.Equal(t, "first", info[0].AppID)
	assert.Equal(t, StatePending, info[0].State)
	assert.Equal(t, StateEmpty, info[1].State)
}

func TestObservers(t *testing.T) {
	assert.Nil(t, Observers())
	assert.Nil(t, Observers(nil, nil))

	var a, b int
	one := ObserverFunc(func(cmds []Command) { a += len(cmds) })
	assert.NotNil(t, Observers(nil, one))

	both := Observers(one, nil, ObserverFunc(func(cmds []Command) { b += len(cmds) }))
	both.Observe([]Command{{Text: "か"}, {Text: "!"}})
	assert.Equal(t, 2, a)
	assert.Equal(t, 2, b)
}
