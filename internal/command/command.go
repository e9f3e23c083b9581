// Package command executes textual commands such as "BF.ADD key item"
// against a sketchkv.Store. Transports hand the dispatcher the split
// arguments of a request and encode the reply, which is built only from
// JSON-friendly values (nil, integers, strings, []string and []any) and the
// structure Info records.
package command

import (
	"context"
	"errors"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"

	"github.com/jcalabro/sketchkv"
	"github.com/jcalabro/sketchkv/sketcherr"
)

var (
	// ErrUnknownCommand is returned for command names that are not registered.
	ErrUnknownCommand = errors.New("unknown command")

	// ErrSyntax is returned for malformed command arguments.
	ErrSyntax = errors.New("syntax error")
)

// OK is the reply of commands that only report success.
const OK = "OK"

type handler func(s *sketchkv.Store, args []string) (any, error)

// command describes one registered command. args counts the arguments after
// the command name; maxArgs < 0 means unbounded.
type command struct {
	minArgs int
	maxArgs int
	run     handler
}

// Dispatcher maps command names to Store operations.
type Dispatcher struct {
	store    *sketchkv.Store
	commands map[string]command
}

// New returns a dispatcher executing commands against store.
func New(store *sketchkv.Store) *Dispatcher {
	d := &Dispatcher{
		store:    store,
		commands: make(map[string]command),
	}
	d.registerGeneric()
	d.registerBloom()
	d.registerCuckoo()
	d.registerCMS()
	d.registerTopK()
	d.registerTDigest()
	return d
}

func (d *Dispatcher) register(name string, minArgs, maxArgs int, run handler) {
	if _, ok := d.commands[name]; ok {
		panic("command: duplicate registration of " + name)
	}
	d.commands[name] = command{minArgs: minArgs, maxArgs: maxArgs, run: run}
}

// Names returns the registered command names, sorted.
func (d *Dispatcher) Names() []string {
	names := make([]string, 0, len(d.commands))
	for name := range d.commands {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Execute runs the command args[0] with the remaining arguments. Command
// names are case-insensitive.
func (d *Dispatcher) Execute(ctx context.Context, args []string) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("%w: empty command", ErrSyntax)
	}
	name := strings.ToUpper(args[0])
	cmd, ok := d.commands[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCommand, args[0])
	}
	rest := args[1:]
	if len(rest) < cmd.minArgs || (cmd.maxArgs >= 0 && len(rest) > cmd.maxArgs) {
		return nil, fmt.Errorf("%w: wrong number of arguments for %s", ErrSyntax, name)
	}
	return cmd.run(d.store, rest)
}

// IsClientError reports whether err was caused by the request rather than
// by the server.
func IsClientError(err error) bool {
	for _, target := range []error{
		ErrUnknownCommand, ErrSyntax,
		sketcherr.ErrConfiguration, sketcherr.ErrKeyNotFound, sketcherr.ErrKeyExists,
		sketcherr.ErrTypeMismatch, sketcherr.ErrCapacityExceeded, sketcherr.ErrDimensionMismatch,
		sketcherr.ErrOutOfOrderChunk, sketcherr.ErrArityMismatch, sketcherr.ErrInvalidArgument,
		sketcherr.ErrInvalidData, sketcherr.ErrUnsupportedVersion,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func parseUint(arg, what string, bitSize int) (uint64, error) {
	v, err := strconv.ParseUint(arg, 10, bitSize)
	if err != nil {
		return 0, fmt.Errorf("%w: %s %q is not a valid unsigned integer", ErrSyntax, what, arg)
	}
	return v, nil
}

func parseInt(arg, what string) (int64, error) {
	v, err := strconv.ParseInt(arg, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s %q is not a valid integer", ErrSyntax, what, arg)
	}
	return v, nil
}

func parseFloat(arg, what string) (float64, error) {
	v, err := strconv.ParseFloat(arg, 64)
	if err != nil || math.IsNaN(v) {
		return 0, fmt.Errorf("%w: %s %q is not a valid number", ErrSyntax, what, arg)
	}
	return v, nil
}

// pairs splits alternating name/value arguments.
func pairs(args []string, what string) ([]string, []string, error) {
	if len(args) == 0 || len(args)%2 != 0 {
		return nil, nil, fmt.Errorf("%w: expected %s pairs", ErrSyntax, what)
	}
	names := make([]string, 0, len(args)/2)
	values := make([]string, 0, len(args)/2)
	for i := 0; i < len(args); i += 2 {
		names = append(names, args[i])
		values = append(values, args[i+1])
	}
	return names, values, nil
}

func boolInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

func boolInts(bs []bool) []any {
	out := make([]any, len(bs))
	for i, b := range bs {
		out[i] = boolInt(b)
	}
	return out
}

// results renders per-item batch results, replacing failed items with
// their error message.
func results(rs []sketchkv.Result[bool]) []any {
	out := make([]any, len(rs))
	for i, r := range rs {
		if r.Err != nil {
			out[i] = "ERR " + r.Err.Error()
			continue
		}
		out[i] = boolInt(r.Value)
	}
	return out
}

// formatFloat renders floats as strings so that NaN and infinities survive
// JSON encoding.
func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
