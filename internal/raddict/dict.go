/*
Copyright 2025 Google LLC

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	https://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package raddict parses the RADIUS attribute dictionary used to type
// and name attributes carried on the wire.
package raddict

import (
	"bufio"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"sync"

	"k8s.io/klog/v2"
)

// AttrType is the semantic type of a dictionary attribute.
type AttrType int

const (
	TypeInteger AttrType = iota
	TypeString
	TypeDate
	TypeIPAddr
)

func (t AttrType) String() string {
	switch t {
	case TypeInteger:
		return "integer"
	case TypeString:
		return "string"
	case TypeDate:
		return "date"
	case TypeIPAddr:
		return "ipaddr"
	default:
		return "unknown"
	}
}

func parseType(s string) (AttrType, bool) {
	switch s {
	case "integer":
		return TypeInteger, true
	case "string":
		return TypeString, true
	case "date":
		return TypeDate, true
	case "ipaddr":
		return TypeIPAddr, true
	default:
		return 0, false
	}
}

// Value is a single named value entry of a VALUE line.
type Value struct {
	Name    string
	Integer int64  // valid when the owning attribute is TypeInteger
	String  string // valid when TypeString
	Date    int64  // unix seconds, valid when TypeDate
	IPAddr  net.IP // valid when TypeIPAddr
}

// Attr is one ATTRIBUTE record together with its named VALUEs.
type Attr struct {
	Name   string
	ID     int
	Type   AttrType
	Values []Value
}

// FindValueByName returns the named value, if any.
func (a *Attr) FindValueByName(name string) (Value, bool) {
	for _, v := range a.Values {
		if v.Name == name {
			return v, true
		}
	}
	return Value{}, false
}

// FindValueByInteger returns the value whose integer encoding matches n.
// Only meaningful for TypeInteger attributes.
func (a *Attr) FindValueByInteger(n int64) (Value, bool) {
	if a.Type != TypeInteger {
		return Value{}, false
	}
	for _, v := range a.Values {
		if v.Integer == n {
			return v, true
		}
	}
	return Value{}, false
}

// Dictionary is the loaded attribute dictionary. Zero value is an empty,
// usable dictionary. Load replaces the contents wholesale; concurrent
// readers during Load are not supported (load happens at startup).
type Dictionary struct {
	mu    sync.RWMutex
	attrs []*Attr
}

// New returns an empty dictionary.
func New() *Dictionary {
	return &Dictionary{}
}

// Load parses fname and replaces the dictionary's contents. On any
// syntax error the dictionary is left unchanged (the partial parse is
// discarded) and an error naming file:line is returned.
func (d *Dictionary) Load(fname string) error {
	f, err := os.Open(fname)
	if err != nil {
		return fmt.Errorf("raddict: open %s: %w", fname, err)
	}
	defer f.Close()

	attrs, err := parse(fname, f)
	if err != nil {
		return err
	}

	d.mu.Lock()
	d.attrs = attrs
	d.mu.Unlock()
	return nil
}

func parse(fname string, r *os.File) ([]*Attr, error) {
	var attrs []*Attr
	byName := map[string]*Attr{}

	scanner := bufio.NewScanner(r)
	line := 0
	for scanner.Scan() {
		line++
		// bufio.Scanner's default split function already drops a \r
		// that directly precedes \n; trim again explicitly so a trailing
		// \r never ends up glued to the last field.
		text := strings.TrimRight(scanner.Text(), "\r")
		text = strings.TrimSpace(text)
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}

		fields := strings.Fields(text)
		switch fields[0] {
		case "ATTRIBUTE":
			if len(fields) != 4 {
				return nil, fmt.Errorf("raddict: %s:%d: syntax error", fname, line)
			}
			name, idStr, typeStr := fields[1], fields[2], fields[3]
			if _, exists := byName[name]; exists {
				return nil, fmt.Errorf("raddict: %s:%d: duplicate attribute %q", fname, line, name)
			}
			id, err := strconv.Atoi(idStr)
			if err != nil || id < 1 || id > 255 {
				return nil, fmt.Errorf("raddict: %s:%d: invalid attribute id %q", fname, line, idStr)
			}
			for _, a := range attrs {
				if a.ID == id {
					return nil, fmt.Errorf("raddict: %s:%d: duplicate attribute id %d", fname, line, id)
				}
			}
			typ, ok := parseType(typeStr)
			if !ok {
				return nil, fmt.Errorf("raddict: %s:%d: unknown attribute type %q", fname, line, typeStr)
			}
			attr := &Attr{Name: name, ID: id, Type: typ}
			attrs = append(attrs, attr)
			byName[name] = attr

		case "VALUE":
			if len(fields) != 4 {
				return nil, fmt.Errorf("raddict: %s:%d: syntax error", fname, line)
			}
			attrName, valName, encoded := fields[1], fields[2], fields[3]
			attr, ok := byName[attrName]
			if !ok {
				return nil, fmt.Errorf("raddict: %s:%d: unknown attribute %q", fname, line, attrName)
			}
			if _, exists := attr.FindValueByName(valName); exists {
				return nil, fmt.Errorf("raddict: %s:%d: duplicate value name %q", fname, line, valName)
			}
			val := Value{Name: valName}
			switch attr.Type {
			case TypeInteger:
				n, err := strconv.ParseInt(encoded, 10, 64)
				if err != nil {
					return nil, fmt.Errorf("raddict: %s:%d: syntax error: %w", fname, line, err)
				}
				val.Integer = n
			case TypeString:
				val.String = encoded
			case TypeDate:
				n, err := strconv.ParseInt(encoded, 10, 64)
				if err != nil {
					klog.Warningf("raddict: %s:%d: VALUE of type date has unparseable literal %q, recording name only: %v", fname, line, encoded, err)
				} else {
					val.Date = n
				}
			case TypeIPAddr:
				ip := net.ParseIP(encoded)
				if ip == nil {
					klog.Warningf("raddict: %s:%d: VALUE of type ipaddr has unparseable literal %q, recording name only", fname, line, encoded)
				} else {
					val.IPAddr = ip
				}
			}
			attr.Values = append(attr.Values, val)

		default:
			return nil, fmt.Errorf("raddict: %s:%d: syntax error", fname, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("raddict: %s: %w", fname, err)
	}
	return attrs, nil
}

// Len returns the number of attributes currently loaded.
func (d *Dictionary) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.attrs)
}

// FindAttrByName looks up an attribute by its dictionary name.
func (d *Dictionary) FindAttrByName(name string) (*Attr, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, a := range d.attrs {
		if a.Name == name {
			return a, true
		}
	}
	return nil, false
}

// FindAttrByID looks up an attribute by its numeric id.
func (d *Dictionary) FindAttrByID(id int) (*Attr, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, a := range d.attrs {
		if a.ID == id {
			return a, true
		}
	}
	return nil, false
}

// ErrAttrNotFound is a sentinel for a missing attribute. The lookups in
// this package report absence through their boolean result and do not
// return it.
var ErrAttrNotFound = errors.New("raddict: attribute not found")
