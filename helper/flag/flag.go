// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package flag

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// StringFlag implements the flag.Value interface and allows multiple calls to
// the same variable to append a list.
type StringFlag []string

func (s *StringFlag) String() string {
	return strings.Join(*s, ",")
}

func (s *StringFlag) Set(value string) error {
	*s = append(*s, value)
	return nil
}

// FuncDurationVar is a type of flag that accepts a function, converts the
// user's value to a duration, and then calls the given function.
type FuncDurationVar func(d time.Duration) error

func (f FuncDurationVar) Set(s string) error {
	v, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	return f(v)
}
func (f FuncDurationVar) String() string   { return "" }
func (f FuncDurationVar) IsBoolFlag() bool { return false }

// FuncBoolVar is a type of flag that accepts a function, converts the user's
// value to a bool, and then calls the given function. It is only called when
// the flag is passed, so an explicit false can be told apart from unset.
type FuncBoolVar func(b bool) error

func (f FuncBoolVar) Set(s string) error {
	v, err := strconv.ParseBool(s)
	if err != nil {
		return err
	}
	return f(v)
}
func (f FuncBoolVar) String() string   { return "" }
func (f FuncBoolVar) IsBoolFlag() bool { return true }

// KeyValueFlag collects repeated key=value arguments into a map. A later
// value for the same key wins.
type KeyValueFlag map[string]string

func (kv *KeyValueFlag) String() string {
	if kv == nil || *kv == nil {
		return ""
	}

	pairs := make([]string, 0, len(*kv))
	for k, v := range *kv {
		pairs = append(pairs, k+"="+v)
	}
	sort.Strings(pairs)
	return strings.Join(pairs, ",")
}

func (kv *KeyValueFlag) Set(value string) error {
	k, v, ok := strings.Cut(value, "=")
	if !ok || k == "" {
		return fmt.Errorf("invalid key=value pair %q", value)
	}
	if *kv == nil {
		*kv = make(map[string]string)
	}
	(*kv)[k] = v
	return nil
}
