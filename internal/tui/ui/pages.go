package ui

import (
	"slices"

	"github.com/rivo/tview"
)

type crumb struct {
	page  string
	label string
}

// Pages is a navigation stack over tview.Pages. Every entry carries the
// label shown in the breadcrumbs.
type Pages struct {
	*tview.Pages
	stack    []crumb
	onChange func(labels []string)
}

// NewPages creates an empty navigation stack.
func NewPages() *Pages {
	return &Pages{Pages: tview.NewPages()}
}

// SetOnChange sets the callback run with the labels after every change.
func (p *Pages) SetOnChange(fn func(labels []string)) {
	p.onChange = fn
}

// Push shows page on top of the stack. If page is already on the stack the
// pages above it are dropped instead and returned in pop order; fresh
// reports whether page was added.
func (p *Pages) Push(page, label string) (popped []string, fresh bool) {
	if i := p.index(page); i >= 0 {
		for j := len(p.stack) - 1; j > i; j-- {
			popped = append(popped, p.stack[j].page)
		}
		p.stack = p.stack[:i+1]
		if label != "" {
			p.stack[i].label = label
		}
	} else {
		p.stack = append(p.stack, crumb{page: page, label: label})
		fresh = true
	}
	p.show()
	return popped, fresh
}

// Pop drops the top page and returns its name. The last page is never
// popped.
func (p *Pages) Pop() string {
	if len(p.stack) <= 1 {
		return ""
	}
	top := p.stack[len(p.stack)-1]
	p.stack = p.stack[:len(p.stack)-1]
	p.show()
	return top.page
}

// Relabel changes the breadcrumb of page if it is on the stack.
func (p *Pages) Relabel(page, label string) {
	if i := p.index(page); i >= 0 && p.stack[i].label != label {
		p.stack[i].label = label
		p.notify()
	}
}

// Current returns the top page name.
func (p *Pages) Current() string {
	if len(p.stack) == 0 {
		return ""
	}
	return p.stack[len(p.stack)-1].page
}

// Depth returns the number of pages on the stack.
func (p *Pages) Depth() int {
	return len(p.stack)
}

// Reset makes page the only entry.
func (p *Pages) Reset(page, label string) {
	p.stack = []crumb{{page: page, label: label}}
	p.show()
}

func (p *Pages) index(page string) int {
	return slices.IndexFunc(p.stack, func(c crumb) bool { return c.page == page })
}

func (p *Pages) show() {
	if top := p.Current(); top != "" {
		p.SwitchToPage(top)
	}
	p.notify()
}

func (p *Pages) notify() {
	if p.onChange == nil {
		return
	}
	labels := make([]string, len(p.stack))
	for i, c := range p.stack {
		labels[i] = c.label
	}
	p.onChange(labels)
}
