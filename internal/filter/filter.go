package filter

import (
	"fmt"
	"net/netip"
	"strings"
	"sync"

	"github.com/IGLOU-EU/go-wildcard/v2"
	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"
	"github.com/rs/zerolog/log"

	internalerrors "github.com/rcourtman/pulse-snmp-profiles/internal/errors"
	"github.com/rcourtman/pulse-snmp-profiles/internal/utils"
)

// Variables available to filter expressions.
const (
	VarIPAddr        = "ipaddr"
	VarNodeLabel     = "nodelabel"
	VarLocation      = "location"
	VarForeignSource = "foreignsource"
	VarSysObjectID   = "sysobjectid"
	VarHostname      = "hostname"
	VarCategories    = "categories"
)

// Facts are the node attributes a filter can test besides the address.
type Facts struct {
	NodeLabel     string
	Location      string
	ForeignSource string
	SysObjectID   string
	Hostname      string
	Categories    []string
}

// NodeLookup finds the node facts for an interface address. A missing node
// is reported with ok false and a nil error; err is reserved for lookups that
// could not be answered.
type NodeLookup interface {
	NodeFacts(addr netip.Addr) (facts Facts, ok bool, err error)
}

// ParseError is returned when an address or expression cannot be evaluated.
type ParseError struct {
	Expression string
	Err        error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("filter parse error: %v", e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

func newParseError(expression string, err error) *ParseError {
	return &ParseError{Expression: expression, Err: internalerrors.WrapFilterError(expression, err)}
}

// Evaluator evaluates CEL filter expressions against an address. It is safe
// for concurrent use; compiled programs are cached per expression.
type Evaluator struct {
	env      *cel.Env
	nodes    NodeLookup
	programs sync.Map // expression -> cel.Program
}

// NewEvaluator creates an evaluator. nodes may be nil, in which case only the
// ipaddr variable carries a value.
func NewEvaluator(nodes NodeLookup) (*Evaluator, error) {
	env, err := cel.NewEnv(
		cel.Variable(VarIPAddr, cel.StringType),
		cel.Variable(VarNodeLabel, cel.StringType),
		cel.Variable(VarLocation, cel.StringType),
		cel.Variable(VarForeignSource, cel.StringType),
		cel.Variable(VarSysObjectID, cel.StringType),
		cel.Variable(VarHostname, cel.StringType),
		cel.Variable(VarCategories, cel.ListType(cel.StringType)),
		cel.Function("iplike",
			cel.Overload("iplike_string_string",
				[]*cel.Type{cel.StringType, cel.StringType},
				cel.BoolType,
				cel.BinaryBinding(iplikeBinding),
			),
		),
		cel.Function("wildcard",
			cel.Overload("wildcard_string_string",
				[]*cel.Type{cel.StringType, cel.StringType},
				cel.BoolType,
				cel.BinaryBinding(wildcardBinding),
			),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("create filter environment: %w", err)
	}
	return &Evaluator{env: env, nodes: nodes}, nil
}

// IsValid reports whether address satisfies expression. Blank expressions
// always match.
func (e *Evaluator) IsValid(address, expression string) (bool, error) {
	if strings.TrimSpace(expression) == "" {
		return true, nil
	}

	addr, err := utils.ParseHostAddress(address)
	if err != nil {
		return false, newParseError(expression, fmt.Errorf("address %q: %w", address, err))
	}

	prg, err := e.program(expression)
	if err != nil {
		return false, err
	}

	vars, err := e.activation(addr)
	if err != nil {
		return false, newParseError(expression, err)
	}

	out, _, err := prg.Eval(vars)
	if err != nil {
		return false, newParseError(expression, err)
	}
	matched, ok := out.Value().(bool)
	if !ok {
		return false, newParseError(expression, fmt.Errorf("expression returned %s, want bool", out.Type()))
	}
	return matched, nil
}

func (e *Evaluator) program(expression string) (cel.Program, error) {
	if cached, ok := e.programs.Load(expression); ok {
		return cached.(cel.Program), nil
	}

	ast, issues := e.env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, newParseError(expression, issues.Err())
	}
	if !ast.OutputType().IsAssignableType(cel.BoolType) {
		return nil, newParseError(expression, fmt.Errorf("expression has type %s, want bool", ast.OutputType()))
	}
	prg, err := e.env.Program(ast)
	if err != nil {
		return nil, newParseError(expression, err)
	}

	actual, _ := e.programs.LoadOrStore(expression, prg)
	return actual.(cel.Program), nil
}

// activation builds the CEL variables for addr. An address without an
// inventory node evaluates against empty facts.
func (e *Evaluator) activation(addr netip.Addr) (map[string]any, error) {
	vars := map[string]any{
		VarIPAddr:        addr.String(),
		VarNodeLabel:     "",
		VarLocation:      "",
		VarForeignSource: "",
		VarSysObjectID:   "",
		VarHostname:      "",
		VarCategories:    []string{},
	}
	if e.nodes == nil {
		return vars, nil
	}

	facts, ok, err := e.nodes.NodeFacts(addr)
	if err != nil {
		return nil, fmt.Errorf("node lookup for %s: %w", addr, err)
	}
	if !ok {
		log.Debug().Str("ip", addr.String()).Msg("No inventory node for filter address")
		return vars, nil
	}
	vars[VarNodeLabel] = facts.NodeLabel
	vars[VarLocation] = facts.Location
	vars[VarForeignSource] = facts.ForeignSource
	vars[VarSysObjectID] = facts.SysObjectID
	vars[VarHostname] = facts.Hostname
	if facts.Categories != nil {
		vars[VarCategories] = facts.Categories
	}
	return vars, nil
}

func iplikeBinding(lhs, rhs ref.Val) ref.Val {
	ip, ok := lhs.(types.String)
	if !ok {
		return types.MaybeNoSuchOverloadErr(lhs)
	}
	pattern, ok := rhs.(types.String)
	if !ok {
		return types.MaybeNoSuchOverloadErr(rhs)
	}
	addr, err := netip.ParseAddr(string(ip))
	if err != nil {
		return types.NewErr("iplike: invalid address %q", string(ip))
	}
	matched, err := MatchIPLike(addr, string(pattern))
	if err != nil {
		return types.NewErr("iplike: %s", err.Error())
	}
	return types.Bool(matched)
}

func wildcardBinding(lhs, rhs ref.Val) ref.Val {
	value, ok := lhs.(types.String)
	if !ok {
		return types.MaybeNoSuchOverloadErr(lhs)
	}
	pattern, ok := rhs.(types.String)
	if !ok {
		return types.MaybeNoSuchOverloadErr(rhs)
	}
	return types.Bool(wildcard.Match(string(pattern), string(value)))
}
