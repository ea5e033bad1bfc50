// CLAUDE:SUMMARY Entity protocol (Find/Parse), descriptor validation and panic-safe invocation helpers.
// Package detect is the structural detection engine. An Entity finds
// candidate nodes in a tree and parses each one into a scored Record; a
// Watcher tracks the accepted candidates of one entity while the tree
// mutates and reports them as a stream of Added and Removed events.
package detect

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/net/html"
)

var (
	ErrInvalidEntity   = errors.New("detect: invalid entity")
	ErrInvalidRoot     = errors.New("detect: invalid root")
	ErrNilDocument     = errors.New("detect: nil document")
	ErrDuplicateEntity = errors.New("detect: entity already registered")
	ErrUnknownEntity   = errors.New("detect: unknown entity")
	ErrStarted         = errors.New("detect: watcher already started")
	ErrStopped         = errors.New("detect: watcher stopped")
)

// FinderFunc returns the candidates below root, in document order.
type FinderFunc func(root *html.Node) []*html.Node

// ParserFunc turns one candidate into a Record.
type ParserFunc func(n *html.Node) Record

// Entity is one kind of region the engine can detect.
type Entity interface {
	Name() string
	Find(root *html.Node) []*html.Node
	Parse(n *html.Node) Record
}

// Teardown is implemented by entities that can tell a tracked node has
// stopped being an instance while still attached.
type Teardown interface {
	Gone(n *html.Node) bool
}

// Scoper is implemented by entities whose candidates can be identified by a
// change deeper than a direct child. Scope returns the subtree to rescan when
// changed is added or modified; nil falls back to changed's parent.
type Scoper interface {
	Scope(changed *html.Node) *html.Node
}

// Nester is implemented by entities whose candidates can contain one
// another. The watcher applies the policy across incremental scans too.
type Nester interface {
	Nesting() NestingPolicy
}

// Descriptor pairs an entity name with its finder and parser.
type Descriptor struct {
	Name  string
	Find  FinderFunc
	Parse ParserFunc
	// Nesting is applied to Find's results.
	Nesting NestingPolicy
	// Gone, when set, signals teardown of a still-attached node.
	Gone func(n *html.Node) bool
	// Scope, when set, overrides the rescan context for a change.
	Scope func(changed *html.Node) *html.Node
}

// Validate reports why a descriptor cannot be used.
func (d Descriptor) Validate() error {
	if err := validName(d.Name); err != nil {
		return err
	}
	if d.Find == nil {
		return fmt.Errorf("%w: %s: nil finder", ErrInvalidEntity, d.Name)
	}
	if d.Parse == nil {
		return fmt.Errorf("%w: %s: nil parser", ErrInvalidEntity, d.Name)
	}
	return nil
}

func validName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidEntity)
	}
	if strings.ContainsAny(name, " \t\r\n/") {
		return fmt.Errorf("%w: name %q contains whitespace or slash", ErrInvalidEntity, name)
	}
	return nil
}

// Define validates d and returns it as an Entity.
func Define(d Descriptor) (Entity, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}
	return &described{d: d}, nil
}

// MustDefine is Define for descriptors declared at package level.
func MustDefine(d Descriptor) Entity {
	e, err := Define(d)
	if err != nil {
		panic(err)
	}
	return e
}

type described struct{ d Descriptor }

func (e *described) Name() string { return e.d.Name }
func (e *described) Parse(n *html.Node) Record { return e.d.Parse(n) }
func (e *described) Nesting() NestingPolicy { return e.d.Nesting }

func (e *described) Find(root *html.Node) []*html.Node {
	return applyNesting(e.d.Find(root), e.d.Nesting)
}

func (e *described) Gone(n *html.Node) bool {
	return e.d.Gone != nil && e.d.Gone(n)
}

func (e *described) Scope(changed *html.Node) *html.Node {
	if e.d.Scope == nil {
		return nil
	}
	return e.d.Scope(changed)
}

func nestingOf(e Entity) NestingPolicy {
	if n, ok := e.(Nester); ok {
		return n.Nesting()
	}
	return NestAll
}

func checkEntity(e Entity) error {
	if e == nil {
		return fmt.Errorf("%w: nil", ErrInvalidEntity)
	}
	return validName(e.Name())
}

// SafeFind calls e.Find, turning a panic into an error and an empty result.
func SafeFind(e Entity, root *html.Node) (out []*html.Node, err error) {
	if root == nil {
		return nil, nil
	}
	defer func() {
		if r := recover(); r != nil {
			out = nil
			err = fmt.Errorf("detect: %s: finder panicked: %v", e.Name(), r)
		}
	}()
	return e.Find(root), nil
}

// SafeParse calls e.Parse. A parser that panics outright is scored 0 with a
// single "parse" failure.
func SafeParse(e Entity, n *html.Node) (rec Record) {
	defer func() {
		if r := recover(); r != nil {
			rec = failedRecord(fmt.Sprint(r))
		}
	}()
	return e.Parse(n)
}

func safeGone(e Entity, n *html.Node) (gone bool) {
	t, ok := e.(Teardown)
	if !ok {
		return false
	}
	defer func() {
		if recover() != nil {
			gone = false
		}
	}()
	return t.Gone(n)
}

func safeScope(e Entity, changed *html.Node) (scope *html.Node) {
	s, ok := e.(Scoper)
	if !ok {
		return nil
	}
	defer func() {
		if recover() != nil {
			scope = nil
		}
	}()
	return s.Scope(changed)
}
