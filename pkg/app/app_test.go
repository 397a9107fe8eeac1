package app

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/canopy/pkg/connector"
)

type MockErrorHandler struct {
	mock.Mock
}

func (m *MockErrorHandler) HandleError(err error, c connector.Connector) {
	m.Called(err, c)
}

// widget handles its own errors
type widget struct {
	connector.Base
	handle func(error) (bool, error)
}

func newWidget(handle func(error) (bool, error)) *widget {
	w := &widget{handle: handle}
	w.Init(w)
	return w
}

func (w *widget) HandleComponentError(err error) (bool, error) { return w.handle(err) }

type plain struct {
	connector.Base
}

func newPlain() *plain {
	p := &plain{}
	p.Init(p)
	return p
}

func TestHandleErrorChain(t *testing.T) {
	boom := errors.New("boom")
	handlerFailed := errors.New("handler failed")

	tests := []struct {
		name   string
		target func() connector.Connector
		expect func(h *MockErrorHandler, c connector.Connector)
	}{
		{
			name:   "no component handler",
			target: func() connector.Connector { return newPlain() },
			expect: func(h *MockErrorHandler, c connector.Connector) {
				h.On("HandleError", boom, c).Once()
			},
		},
		{
			name: "component handles",
			target: func() connector.Connector {
				return newWidget(func(error) (bool, error) { return true, nil })
			},
			expect: func(h *MockErrorHandler, c connector.Connector) {},
		},
		{
			name: "component declines",
			target: func() connector.Connector {
				return newWidget(func(error) (bool, error) { return false, nil })
			},
			expect: func(h *MockErrorHandler, c connector.Connector) {
				h.On("HandleError", boom, c).Once()
			},
		},
		{
			name: "component handler fails",
			target: func() connector.Connector {
				return newWidget(func(error) (bool, error) { return true, handlerFailed })
			},
			expect: func(h *MockErrorHandler, c connector.Connector) {
				h.On("HandleError", handlerFailed, c).Once()
				h.On("HandleError", boom, c).Once()
			},
		},
		{
			name: "component handler panics",
			target: func() connector.Connector {
				return newWidget(func(error) (bool, error) { panic("oops") })
			},
			expect: func(h *MockErrorHandler, c connector.Connector) {
				h.On("HandleError", mock.MatchedBy(func(err error) bool {
					return errors.Is(err, ErrPanic)
				}), c).Once()
				h.On("HandleError", boom, c).Once()
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := &MockErrorHandler{}
			a := New(Config{ErrorHandler: h})
			c := tt.target()
			tt.expect(h, c)

			a.HandleError(boom, c)
			h.AssertExpectations(t)
			h.AssertNumberOfCalls(t, "HandleError", len(h.ExpectedCalls))
		})
	}
}

func TestHandleErrorWithoutConnector(t *testing.T) {
	h := &MockErrorHandler{}
	h.On("HandleError", mock.Anything, nil).Once()
	a := New(Config{ErrorHandler: h})

	a.HandleError(errors.New("x"), nil)
	h.AssertExpectations(t)
}

func TestAccessRecoversPanic(t *testing.T) {
	a := New(Config{})

	err := a.Access(func() error { panic("bad") })
	assert.ErrorIs(t, err, ErrPanic)
	assert.Contains(t, err.Error(), "bad")

	sentinel := errors.New("sentinel")
	err = a.Access(func() error { panic(sentinel) })
	assert.ErrorIs(t, err, ErrPanic)
	assert.ErrorIs(t, err, sentinel)

	// The lock was released
	called := false
	require.NoError(t, a.Access(func() error {
		called = true
		return nil
	}))
	assert.True(t, called)
}

func TestAccessSerializes(t *testing.T) {
	a := New(Config{})
	counter := 0

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = a.Access(func() error {
				counter++
				return nil
			})
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, counter)
}

func TestRoots(t *testing.T) {
	var built []int
	a := New(Config{Builder: func(root *connector.Root) error {
		built = append(built, root.RootID())
		root.SetContent(newPlain())
		return nil
	}})

	require.NoError(t, a.Access(func() error {
		for i := 0; i < 3; i++ {
			if _, err := a.CreateRoot(); err != nil {
				return err
			}
		}
		return nil
	}))
	assert.Equal(t, []int{0, 1, 2}, built)
	assert.Equal(t, 3, a.RootCount())

	root, ok := a.Root(1)
	require.True(t, ok)
	assert.True(t, root.IsAttached())
	assert.Same(t, a, root.Owner())

	var removed []int
	a.OnRootRemoved(func(id int) { removed = append(removed, id) })

	assert.True(t, a.RemoveRoot(1))
	assert.False(t, a.RemoveRoot(1))
	assert.False(t, root.IsAttached())
	assert.Len(t, a.Roots(), 2)
	assert.Equal(t, 2, a.Roots()[1].RootID())
	assert.Equal(t, []int{1}, removed)

	a.Close()
	assert.False(t, a.IsRunning())
	assert.Zero(t, a.RootCount())
	assert.ElementsMatch(t, []int{1, 0, 2}, removed)
	_, err := a.CreateRoot()
	assert.ErrorIs(t, err, ErrClosed)
}

func TestBuilderFailure(t *testing.T) {
	a := New(Config{Builder: func(*connector.Root) error { return errors.New("no ui") }})
	_, err := a.CreateRoot()
	assert.Error(t, err)
	assert.Zero(t, a.RootCount())
}

func TestDefaults(t *testing.T) {
	a := New(Config{LogoutURL: "/bye"})
	assert.Equal(t, "en_US", a.Locale())
	assert.Equal(t, "/bye", a.LogoutURL())
	a.SetLocale("fi_FI")
	assert.Equal(t, "fi_FI", a.Locale())

	// nil restores the logging handler
	a.SetErrorHandler(nil)
	assert.IsType(t, &LogErrorHandler{}, a.errorHandler)
}
