package app

import (
	"errors"
	"fmt"
	"runtime/debug"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/cuemby/canopy/pkg/connector"
	"github.com/cuemby/canopy/pkg/log"
)

var (
	// ErrPanic wraps a value recovered from a panic inside Access
	ErrPanic = errors.New("app: panic")

	// ErrClosed is returned when a closed application is asked for a new root
	ErrClosed = errors.New("app: application closed")
)

// Builder fills a freshly created root with the application's UI
type Builder func(root *connector.Root) error

// ErrorHandler receives errors no component handled
type ErrorHandler interface {
	HandleError(err error, c connector.Connector)
}

// ErrorHandlerFunc adapts a function to ErrorHandler
type ErrorHandlerFunc func(err error, c connector.Connector)

func (f ErrorHandlerFunc) HandleError(err error, c connector.Connector) { f(err, c) }

// Config configures an Application
type Config struct {
	Builder      Builder
	ErrorHandler ErrorHandler
	Locale       string
	LogoutURL    string
}

// Application is the server-side state of one user session: its roots, the
// counters shared by them and the lock that serialises every access.
type Application struct {
	mu sync.Mutex

	running  atomic.Bool
	counters connector.Counters

	roots     map[int]*connector.Root
	rootCount atomic.Int32
	nextRoot  int

	builder      Builder
	rootRemoved  []func(rootID int)
	errorHandler ErrorHandler
	locale       string
	logoutURL    string
	logger       zerolog.Logger
}

// New creates a running application
func New(cfg Config) *Application {
	a := &Application{
		roots:        make(map[int]*connector.Root),
		builder:      cfg.Builder,
		errorHandler: cfg.ErrorHandler,
		locale:       cfg.Locale,
		logoutURL:    cfg.LogoutURL,
		logger:       log.WithComponent("app"),
	}
	if a.errorHandler == nil {
		a.errorHandler = &LogErrorHandler{Logger: a.logger}
	}
	if a.locale == "" {
		a.locale = "en_US"
	}
	a.running.Store(true)
	return a
}

// Access runs fn holding the application lock. The lock is released on
// every exit path; a panic in fn is returned as an error wrapping ErrPanic.
func (a *Application) Access(fn func() error) (err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	defer func() {
		if r := recover(); r != nil {
			err = PanicError(r)
			a.logger.Error().
				Str("stack", string(debug.Stack())).
				Msgf("Recovered panic: %v", r)
		}
	}()
	return fn()
}

// PanicError converts a recovered value into an error wrapping ErrPanic.
// A recovered error stays matchable with errors.Is.
func PanicError(r any) error {
	if err, ok := r.(error); ok {
		return fmt.Errorf("%w: %w", ErrPanic, err)
	}
	return fmt.Errorf("%w: %v", ErrPanic, r)
}

// IsRunning implements connector.Owner
func (a *Application) IsRunning() bool { return a.running.Load() }

// Counters implements connector.Owner
func (a *Application) Counters() *connector.Counters { return &a.counters }

// CreateRoot creates the next root and runs the builder on it. Must be
// called inside Access.
func (a *Application) CreateRoot() (*connector.Root, error) {
	if !a.IsRunning() {
		return nil, ErrClosed
	}
	root := connector.NewRoot(a.nextRoot, a)
	a.nextRoot++
	if a.builder != nil {
		if err := a.builder(root); err != nil {
			root.Detach()
			return nil, fmt.Errorf("build root %d: %w", root.RootID(), err)
		}
	}
	a.roots[root.RootID()] = root
	a.rootCount.Add(1)
	return root, nil
}

// Root returns the root with the given id
func (a *Application) Root(id int) (*connector.Root, bool) {
	root, ok := a.roots[id]
	return root, ok
}

// Roots returns every root, ordered by id
func (a *Application) Roots() []*connector.Root {
	out := make([]*connector.Root, 0, len(a.roots))
	for _, r := range a.roots {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RootID() < out[j].RootID() })
	return out
}

// RootCount returns the number of roots. Safe without the lock.
func (a *Application) RootCount() int { return int(a.rootCount.Load()) }

// RemoveRoot detaches and forgets a root
func (a *Application) RemoveRoot(id int) bool {
	root, ok := a.roots[id]
	if !ok {
		return false
	}
	root.Detach()
	delete(a.roots, id)
	a.rootCount.Add(-1)
	for _, fn := range a.rootRemoved {
		fn(id)
	}
	return true
}

// OnRootRemoved registers fn to run after a root is removed, including the
// removals done by Close. Must be called inside Access or before the
// application is shared.
func (a *Application) OnRootRemoved(fn func(rootID int)) {
	a.rootRemoved = append(a.rootRemoved, fn)
}

// Close stops the application. Requests after Close get the ended-application
// redirect. Must be called inside Access.
func (a *Application) Close() {
	if !a.running.Swap(false) {
		return
	}
	for id := range a.roots {
		a.RemoveRoot(id)
	}
	a.logger.Debug().Msg("Application closed")
}

func (a *Application) Locale() string          { return a.locale }
func (a *Application) SetLocale(locale string) { a.locale = locale }
func (a *Application) LogoutURL() string       { return a.logoutURL }

// SetLogoutURL sets where clients are sent once the application has ended
func (a *Application) SetLogoutURL(url string) { a.logoutURL = url }

// SetErrorHandler replaces the application error handler. nil restores
// the logging handler.
func (a *Application) SetErrorHandler(h ErrorHandler) {
	if h == nil {
		h = &LogErrorHandler{Logger: a.logger}
	}
	a.errorHandler = h
}

// HandleError routes err raised while serving c. The connector's own
// handler gets the first chance; an error it returns is forwarded to the
// application handler together with the original error.
func (a *Application) HandleError(err error, c connector.Connector) {
	if c != nil {
		if h, ok := c.(connector.ErrorHandler); ok {
			handled, herr := callComponentHandler(h, err)
			if herr != nil {
				a.errorHandler.HandleError(herr, c)
			} else if handled {
				return
			}
		}
	}
	a.errorHandler.HandleError(err, c)
}

func callComponentHandler(h connector.ErrorHandler, err error) (handled bool, herr error) {
	defer func() {
		if r := recover(); r != nil {
			handled, herr = false, fmt.Errorf("%w in error handler: %v", ErrPanic, r)
		}
	}()
	return h.HandleComponentError(err)
}

// LogErrorHandler logs every error it receives
type LogErrorHandler struct {
	Logger zerolog.Logger
}

func (h *LogErrorHandler) HandleError(err error, c connector.Connector) {
	ev := h.Logger.Error().Err(err)
	if c != nil {
		ev = ev.Str("connector", fmt.Sprintf("%T", c))
		if id := c.ConnectorBase().ID(); id != "" {
			ev = ev.Str("connector_id", id)
		}
	}
	ev.Msg("Unhandled error")
}
