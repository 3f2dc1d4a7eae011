package rules

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors returned by the validators.
var (
	ErrInvalidOperator  = errors.New("invalid operator")
	ErrInvalidCondition = errors.New("invalid condition")
	ErrInvalidEffect    = errors.New("invalid effect")
	ErrInvalidRoute     = errors.New("invalid route")
	ErrInvalidResponse  = errors.New("invalid response")
)

// validOperators is the set of all recognised condition operators.
var validOperators = map[Operator]struct{}{
	OpEq:       {},
	OpNeq:      {},
	OpExists:   {},
	OpGt:       {},
	OpLt:       {},
	OpContains: {},
}

var validMethods = map[string]struct{}{
	"GET": {}, "POST": {}, "PUT": {}, "PATCH": {}, "DELETE": {}, "HEAD": {}, "OPTIONS": {},
}

// ValidateConditions performs strict validation of a guard.
// It is a pure function: it never mutates c and has no side effects.
func ValidateConditions(c Conditions) error {
	for field := range c.Fields {
		if strings.TrimSpace(field) == "" {
			return fmt.Errorf("%w: condition field must not be empty", ErrInvalidCondition)
		}
	}
	for i, cond := range c.List {
		if err := validateCondition(i, cond); err != nil {
			return err
		}
	}
	return nil
}

func validateCondition(i int, c Condition) error {
	if strings.TrimSpace(c.Field) == "" {
		return fmt.Errorf("%w: condition[%d] field must not be empty", ErrInvalidCondition, i)
	}
	if _, ok := validOperators[c.Type]; !ok {
		return fmt.Errorf("%w: condition[%d] type %q is not supported", ErrInvalidOperator, i, c.Type)
	}
	return nil
}

// ValidateEffects checks that table effects name a table. Unknown effects are
// accepted; they are carried through and ignored at execution time.
func ValidateEffects(e Effects) error {
	for i, item := range e.Items {
		var table string
		switch eff := item.(type) {
		case DBPush:
			table = eff.Table
		case DBUpdate:
			table = eff.Table
		case DBRemove:
			table = eff.Table
		default:
			continue
		}
		if strings.TrimSpace(table) == "" {
			return fmt.Errorf("%w: effect[%d] %s requires a table", ErrInvalidEffect, i, item.Kind())
		}
	}
	return nil
}

// ValidateRoute checks a transition's method and path pattern.
func ValidateRoute(method, path string) error {
	if _, ok := validMethods[strings.ToUpper(method)]; !ok {
		return fmt.Errorf("%w: method %q is not supported", ErrInvalidRoute, method)
	}
	if !strings.HasPrefix(path, "/") {
		return fmt.Errorf("%w: path %q must start with '/'", ErrInvalidRoute, path)
	}

	seen := make(map[string]struct{})
	for _, seg := range strings.Split(path, "/") {
		if !strings.HasPrefix(seg, ":") {
			continue
		}
		name := strings.TrimPrefix(seg, ":")
		if name == "" {
			return fmt.Errorf("%w: path %q has an unnamed parameter", ErrInvalidRoute, path)
		}
		if _, dup := seen[name]; dup {
			return fmt.Errorf("%w: path %q repeats parameter %q", ErrInvalidRoute, path, name)
		}
		seen[name] = struct{}{}
	}
	return nil
}

// ValidateStatus accepts zero (defaults to 200) or a valid HTTP status code.
func ValidateStatus(status int) error {
	if status == 0 || (status >= 100 && status <= 599) {
		return nil
	}
	return fmt.Errorf("%w: status %d is out of range", ErrInvalidResponse, status)
}
