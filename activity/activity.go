// Package activity implements the concrete activity catalog: the ordered
// classification rules, labor labels and the machine lookup table used by
// the billing engine.
package activity

import (
	"sort"
	"strings"
	"unicode"

	"golang.org/x/text/width"

	"github.com/warp/billing-engine/billing"
)

// =============================================================================
// RULES - Ordered predicate -> code list, first match wins
// =============================================================================

// Rule is one step of the classification precedence.
type Rule struct {
	Name  string
	Match func(e billing.TimesheetEntry) bool
	Code  func(e billing.TimesheetEntry) billing.ActivityCode
}

func fixed(code billing.ActivityCode) func(billing.TimesheetEntry) billing.ActivityCode {
	return func(billing.TimesheetEntry) billing.ActivityCode { return code }
}

// Machine is an entry of the id-keyed machine table.
type Machine struct {
	ID    string
	Label string
}

// Options configures a Catalog.
type Options struct {
	InspectionMarkers []string
	Machines          []Machine
	LaborLabels       map[billing.ActivityCode]string
}

// DefaultLaborLabels are the rate store keys of the labor activities.
var DefaultLaborLabels = map[billing.ActivityCode]string{
	billing.ActivityNormal:     "Normal labor",
	billing.ActivityTrainee:    "Trainee labor",
	billing.ActivityInspection: "Inspection",
}

// DefaultInspectionMarkers match case-insensitively.
var DefaultInspectionMarkers = []string{"点検", "inspection"}

// DefaultMachines is the shop's fixed set of named machines.
var DefaultMachines = []Machine{
	{ID: "nc-lathe", Label: "NC lathe"},
	{ID: "crane", Label: "Overhead crane"},
	{ID: "welder", Label: "Welding machine"},
}

// Catalog implements billing.Catalog.
type Catalog struct {
	rules    []Rule
	machines map[string]Machine
	labels   map[billing.ActivityCode]string
}

var _ billing.Catalog = (*Catalog)(nil)

// New builds a catalog. Empty options fall back to the defaults.
func New(opts Options) *Catalog {
	c := &Catalog{
		machines: make(map[string]Machine),
		labels:   make(map[billing.ActivityCode]string),
	}
	for code, label := range DefaultLaborLabels {
		c.labels[code] = label
	}
	for code, label := range opts.LaborLabels {
		c.labels[code] = label
	}
	machines := opts.Machines
	if len(machines) == 0 {
		machines = DefaultMachines
	}
	for _, m := range machines {
		c.machines[m.ID] = m
	}

	markers := opts.InspectionMarkers
	if len(markers) == 0 {
		markers = DefaultInspectionMarkers
	}
	lowered := make([]string, 0, len(markers))
	for _, m := range markers {
		if m = strings.TrimSpace(m); m != "" {
			lowered = append(lowered, strings.ToLower(m))
		}
	}

	c.rules = []Rule{
		{
			Name:  "trainee",
			Match: func(e billing.TimesheetEntry) bool { return IsKatakanaName(e.Worker.DisplayName) },
			Code:  fixed(billing.ActivityTrainee),
		},
		{
			Name:  "inspection",
			Match: func(e billing.TimesheetEntry) bool { return containsAny(strings.ToLower(e.Description), lowered) },
			Code:  fixed(billing.ActivityInspection),
		},
		{
			Name: "machine",
			Match: func(e billing.TimesheetEntry) bool {
				_, ok := c.machines[e.MachineRef()]
				return ok
			},
			Code: func(e billing.TimesheetEntry) billing.ActivityCode { return billing.MachineActivity(e.MachineRef()) },
		},
		{
			Name:  "normal",
			Match: func(billing.TimesheetEntry) bool { return true },
			Code:  fixed(billing.ActivityNormal),
		},
	}
	return c
}

// Default returns a catalog with the default machines and labels.
func Default() *Catalog { return New(Options{}) }

// Rules returns the precedence list.
func (c *Catalog) Rules() []Rule { return c.rules }

// Classify maps one entry to exactly one activity code.
func (c *Catalog) Classify(e billing.TimesheetEntry) billing.ActivityCode {
	for _, r := range c.rules {
		if r.Match(e) {
			return r.Code(e)
		}
	}
	return billing.ActivityNormal
}

// Label returns the human-readable label of a code. Machine codes use the
// machine table label, falling back to the machine id.
func (c *Catalog) Label(code billing.ActivityCode) string {
	if id, ok := code.MachineID(); ok {
		if m, ok := c.machines[id]; ok && m.Label != "" {
			return m.Label
		}
		return id
	}
	if label, ok := c.labels[code]; ok {
		return label
	}
	return string(code)
}

// Machines lists the machine table by id.
func (c *Catalog) Machines() []Machine {
	out := make([]Machine, 0, len(c.machines))
	for _, m := range c.machines {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// =============================================================================
// SCRIPT CHECK
// =============================================================================

// IsKatakanaName reports whether a display name is written entirely in
// katakana. Half-width forms are widened first; the prolonged sound mark,
// middle dot and spaces are allowed. At least one katakana letter is required.
func IsKatakanaName(name string) bool {
	name = width.Widen.String(strings.TrimSpace(name))
	letters := 0
	for _, r := range name {
		switch {
		case unicode.Is(unicode.Katakana, r):
			letters++
		case r == 'ー' || r == '・' || r == ' ' || r == '　':
		default:
			return false
		}
	}
	return letters > 0
}
