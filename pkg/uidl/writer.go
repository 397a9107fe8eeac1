package uidl

import (
	"bytes"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/cuemby/canopy/pkg/connector"
	"github.com/cuemby/canopy/pkg/log"
	"github.com/cuemby/canopy/pkg/paint"
	"github.com/cuemby/canopy/pkg/types"
	"github.com/cuemby/canopy/pkg/value"
)

// Prefix starts every response so the body cannot be run as a script
const Prefix = "for(;;);"

// TemplateSource loads custom layout templates by name
type TemplateSource interface {
	Template(name string) (string, error)
}

// Config configures a Writer
type Config struct {
	// Types resolves client types; connector.DefaultTypes when nil
	Types *connector.TypeRegistry

	// Templates supplies custom layout templates; none when nil
	Templates TemplateSource

	// ProductionMode drops debug-only output: timings, layout analysis and
	// highlighting
	ProductionMode bool

	// Messages decides whether the session-expired timed redirect is sent
	Messages *types.SystemMessages

	Logger *zerolog.Logger
}

// Options are the per-response switches
type Options struct {
	RepaintAll     bool
	AnalyzeLayouts bool

	// Highlight is the id of a connector to highlight on the client
	Highlight string

	// SecurityKey, when set, is written as the first entry
	SecurityKey string

	// Locale is the application locale, announced on full repaint
	Locale string

	// SessionTimeout feeds the timed redirect interval
	SessionTimeout time.Duration

	// Timings are written outside production mode when set
	Timings *Timings
}

// Timings are the server-side processing times reported to the client
type Timings struct {
	Session     time.Duration
	LastRequest time.Duration
}

// Stats describes one written response
type Stats struct {
	Painted     int
	Invocations int
	Bytes       int
}

type rootState struct {
	locales         *Locales
	timeoutInterval int
}

// Writer turns the dirty state of a root into one UIDL message. There is
// one writer per application; it is only used under the application lock.
type Writer struct {
	cfg    Config
	types  *connector.TypeRegistry
	keys   *TypeKeys
	roots  map[int]*rootState
	logger zerolog.Logger
}

// NewWriter creates a writer
func NewWriter(cfg Config) *Writer {
	w := &Writer{
		cfg:   cfg,
		types: cfg.Types,
		keys:  NewTypeKeys(),
		roots: make(map[int]*rootState),
	}
	if w.types == nil {
		w.types = connector.DefaultTypes
	}
	if cfg.Logger != nil {
		w.logger = *cfg.Logger
	} else {
		w.logger = log.WithComponent("uidl")
	}
	return w
}

func (w *Writer) rootState(id int) *rootState {
	rs, ok := w.roots[id]
	if !ok {
		rs = &rootState{locales: NewLocales(), timeoutInterval: -1}
		w.roots[id] = rs
	}
	return rs
}

// Forget drops the per-root state kept for a closed root
func (w *Writer) Forget(rootID int) {
	delete(w.roots, rootID)
}

// TrackedRoots returns the number of roots the writer keeps state for
func (w *Writer) TrackedRoots() int { return len(w.roots) }

// Write appends a complete message for root to out. On error out holds a
// partial message that must be discarded.
func (w *Writer) Write(out *bytes.Buffer, root *connector.Root, opts Options) (Stats, error) {
	start := out.Len()
	p := &pass{
		w:     w,
		root:  root,
		rs:    w.rootState(root.RootID()),
		opts:  opts,
		used:  make(map[string]bool),
		out:   out,
		debug: !w.cfg.ProductionMode,
	}
	stats, err := p.run()
	stats.Bytes = out.Len() - start
	return stats, err
}

// pass is the state of one Write call. It also resolves ids and type keys
// for the paint target.
type pass struct {
	w     *Writer
	root  *connector.Root
	rs    *rootState
	opts  Options
	out   *bytes.Buffer
	debug bool

	usedOrder []string
	used      map[string]bool
}

func (p *pass) IDFor(c connector.Connector) (string, error) {
	return p.root.Registry().IDFor(c)
}

func (p *pass) TypeKey(c connector.Connector) (string, error) {
	name, err := p.w.types.ClientTypeOf(c)
	if err != nil {
		return "", err
	}
	if !p.used[name] {
		p.used[name] = true
		p.usedOrder = append(p.usedOrder, name)
	}
	return strconv.Itoa(p.w.keys.KeyFor(name)), nil
}

func (p *pass) run() (Stats, error) {
	var stats Stats
	root := p.root
	tracker := root.Tracker()
	cache := root.Cache()

	if p.opts.RepaintAll {
		cache.Clear()
		tracker.MarkAllDirty(root)
		p.rs.locales.Reset()
		if p.opts.Locale != "" {
			p.rs.locales.Require(p.opts.Locale)
		}
	}

	dirty := make([]connector.Connector, 0, tracker.Len())
	for _, c := range tracker.Dirty() {
		if connector.IsVisible(c) {
			dirty = append(dirty, c)
		}
	}
	for _, c := range dirty {
		if su, ok := c.(connector.StateUpdater); ok {
			su.UpdateState()
		}
	}
	tracker.Clear()
	stats.Painted = len(dirty)

	ids := make([]string, len(dirty))
	for i, c := range dirty {
		id, err := p.IDFor(c)
		if err != nil {
			return stats, err
		}
		ids[i] = id
	}

	out := p.out
	out.WriteString(Prefix)
	out.WriteString("[{")
	if p.opts.SecurityKey != "" {
		out.WriteString(`"securityKey":`)
		value.WriteQuoted(out, p.opts.SecurityKey)
		out.WriteByte(',')
	}

	target, err := p.writeChanges(dirty)
	if err != nil {
		return stats, err
	}
	if err := p.writeState(dirty, ids); err != nil {
		return stats, err
	}
	if err := p.writeTypes(dirty, ids); err != nil {
		return stats, err
	}
	if err := p.writeHierarchy(dirty, ids); err != nil {
		return stats, err
	}
	n, err := p.writeRPC(dirty)
	if err != nil {
		return stats, err
	}
	stats.Invocations = n
	if err := p.writeMeta(); err != nil {
		return stats, err
	}
	p.writeResources(dirty, target)
	p.writeTypeMappings()
	for _, l := range target.Locales() {
		p.rs.locales.Require(l)
	}
	p.writeLocales()
	if p.debug && p.opts.Timings != nil {
		fmt.Fprintf(out, `,"timings":[%d,%d]`,
			p.opts.Timings.Session.Milliseconds(), p.opts.Timings.LastRequest.Milliseconds())
	}
	out.WriteString("}]")

	if removed := root.Registry().Purge(); removed > 0 {
		p.w.logger.Debug().
			Int("root_id", root.RootID()).
			Int("removed", removed).
			Msg("Purged detached connectors")
	}
	return stats, nil
}

func (p *pass) writeChanges(dirty []connector.Connector) (*paint.Target, error) {
	p.out.WriteString(`"changes":[`)
	target := paint.NewTarget(p.out, p)
	for _, c := range connector.SortByHierarchy(dirty) {
		pt, ok := c.(paint.Paintable)
		if !ok {
			continue
		}
		id, err := p.IDFor(c)
		if err != nil {
			return nil, err
		}
		if err := target.StartTag("change"); err != nil {
			return nil, err
		}
		if err := target.AddAttribute("pid", id); err != nil {
			return nil, err
		}
		if err := paint.Paint(target, pt); err != nil {
			return nil, fmt.Errorf("paint %s: %w", id, err)
		}
		if err := target.EndTag("change"); err != nil {
			return nil, err
		}
		p.w.logger.Debug().Str("id", id).Msgf("Painted %T", c)
	}
	if err := target.Close(); err != nil {
		return nil, err
	}
	p.out.WriteByte(']')
	return target, nil
}

func (p *pass) writeState(dirty []connector.Connector, ids []string) error {
	p.out.WriteString(`,"state":{`)
	for i, c := range dirty {
		if i > 0 {
			p.out.WriteByte(',')
		}
		value.WriteQuoted(p.out, ids[i])
		p.out.WriteByte(':')
		if err := value.Encode(p.out, c.ConnectorBase().State()); err != nil {
			return fmt.Errorf("state of %s: %w", ids[i], err)
		}
	}
	p.out.WriteByte('}')
	return nil
}

func (p *pass) writeTypes(dirty []connector.Connector, ids []string) error {
	p.out.WriteString(`,"types":{`)
	for i, c := range dirty {
		key, err := p.TypeKey(c)
		if err != nil {
			return fmt.Errorf("type of %s: %w", ids[i], err)
		}
		if i > 0 {
			p.out.WriteByte(',')
		}
		value.WriteQuoted(p.out, ids[i])
		p.out.WriteByte(':')
		value.WriteQuoted(p.out, key)
	}
	p.out.WriteByte('}')
	return nil
}

func (p *pass) writeHierarchy(dirty []connector.Connector, ids []string) error {
	p.out.WriteString(`,"hierarchy":{`)
	n := 0
	for i, c := range dirty {
		ct, ok := c.(connector.Container)
		if !ok {
			continue
		}
		if n > 0 {
			p.out.WriteByte(',')
		}
		n++
		value.WriteQuoted(p.out, ids[i])
		p.out.WriteString(":[")
		for j, child := range connector.VisibleChildren(ct) {
			id, err := p.IDFor(child)
			if err != nil {
				return err
			}
			if j > 0 {
				p.out.WriteByte(',')
			}
			value.WriteQuoted(p.out, id)
		}
		p.out.WriteByte(']')
	}
	p.out.WriteByte('}')
	return nil
}

func (p *pass) writeRPC(dirty []connector.Connector) (int, error) {
	var merged []*connector.Invocation
	for _, c := range dirty {
		if pending := connector.CollectPending(c); len(pending) > 0 {
			merged = connector.MergeInvocations(merged, pending)
		}
	}
	if len(merged) == 0 {
		return 0, nil
	}

	p.out.WriteString(`,"rpc":[`)
	for i, inv := range merged {
		id, err := p.IDFor(inv.Target())
		if err != nil {
			return 0, err
		}
		if i > 0 {
			p.out.WriteByte(',')
		}
		p.out.WriteByte('[')
		value.WriteQuoted(p.out, id)
		p.out.WriteByte(',')
		value.WriteQuoted(p.out, inv.Interface())
		p.out.WriteByte(',')
		value.WriteQuoted(p.out, inv.Method())
		p.out.WriteString(",[")
		for j, param := range inv.Params() {
			if j > 0 {
				p.out.WriteByte(',')
			}
			if err := value.Encode(p.out, param); err != nil {
				return 0, fmt.Errorf("rpc %s.%s on %s: %w", inv.Interface(), inv.Method(), id, err)
			}
		}
		p.out.WriteString("]]")
	}
	p.out.WriteByte(']')
	return len(merged), nil
}

func (p *pass) writeMeta() error {
	p.out.WriteString(`,"meta":{`)
	n := 0
	sep := func() {
		if n > 0 {
			p.out.WriteByte(',')
		}
		n++
	}

	if p.opts.RepaintAll {
		sep()
		p.out.WriteString(`"repaintAll":true`)
		if p.debug && p.opts.AnalyzeLayouts {
			sep()
			p.out.WriteString(`"invalidLayouts":`)
			if err := writeProblems(p.out, AnalyzeLayouts(p.root), p.IDFor); err != nil {
				return err
			}
		}
		if p.debug && p.opts.Highlight != "" {
			sep()
			p.out.WriteString(`"hl":`)
			value.WriteQuoted(p.out, p.opts.Highlight)
		}
	}

	if msgs := p.w.cfg.Messages; msgs != nil && msgs.SessionExpired.Enabled && msgs.SessionExpired.Silent() {
		interval := int(p.opts.SessionTimeout / time.Second)
		if p.opts.RepaintAll || interval != p.rs.timeoutInterval {
			sep()
			fmt.Fprintf(p.out, `"timedRedirect":{"interval":%d,"url":`, interval+15)
			value.WriteQuoted(p.out, msgs.SessionExpired.URL)
			p.out.WriteByte('}')
		}
		p.rs.timeoutInterval = interval
	}

	p.out.WriteByte('}')
	return nil
}

func (p *pass) writeResources(dirty []connector.Connector, target *paint.Target) {
	names := target.Templates()
	for _, c := range dirty {
		if tu, ok := c.(paint.TemplateUser); ok {
			if name := tu.LayoutTemplate(); name != "" {
				names = append(names, name)
			}
		}
	}

	p.out.WriteString(`,"resources":{`)
	n := 0
	cache := p.root.Cache()
	for _, name := range names {
		key := "layouts/" + name + ".html"
		if cache.Contains(connector.ResourceKeyPrefix + key) {
			continue
		}
		if p.w.cfg.Templates == nil {
			p.w.logger.Warn().Str("template", name).Msg("No template source configured")
			continue
		}
		text, err := p.w.cfg.Templates.Template(name)
		if err != nil {
			p.w.logger.Warn().Err(err).Str("template", name).Msg("Layout template not found")
			continue
		}
		cache.Cache(connector.ResourceKeyPrefix + key)
		if n > 0 {
			p.out.WriteByte(',')
		}
		n++
		value.WriteQuoted(p.out, key)
		p.out.WriteByte(':')
		value.WriteQuoted(p.out, text)
	}
	p.out.WriteByte('}')
}

func (p *pass) writeTypeMappings() {
	cache := p.root.Cache()
	n := 0
	for _, name := range p.usedOrder {
		if !cache.Cache(connector.TypeKeyPrefix + name) {
			continue
		}
		if n == 0 {
			p.out.WriteString(`,"typeMappings":{`)
		} else {
			p.out.WriteByte(',')
		}
		n++
		value.WriteQuoted(p.out, name)
		p.out.WriteByte(':')
		p.out.WriteString(strconv.Itoa(p.w.keys.KeyFor(name)))
	}
	if n > 0 {
		p.out.WriteByte('}')
	}
}

func (p *pass) writeLocales() {
	p.out.WriteString(`,"locales":[`)
	for i, name := range p.rs.locales.TakePending() {
		if i > 0 {
			p.out.WriteByte(',')
		}
		writeLocale(p.out, name)
	}
	p.out.WriteByte(']')
}
