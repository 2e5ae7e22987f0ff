package viewer

// Pager walks a fixed number of pages, wrapping around at both ends.
type Pager struct {
	n   int
	cur int
}

// NewPager creates a pager over n pages, positioned on the first one.
func NewPager(n int) *Pager {
	return &Pager{n: n}
}

// Len returns the number of pages.
func (p *Pager) Len() int { return p.n }

// Index returns the current page.
func (p *Pager) Index() int { return p.cur }

// Next moves forward one page and returns the new index.
func (p *Pager) Next() int { return p.move(1) }

// Prev moves back one page and returns the new index.
func (p *Pager) Prev() int { return p.move(-1) }

func (p *Pager) move(step int) int {
	if p.n == 0 {
		return 0
	}
	p.cur = ((p.cur+step)%p.n + p.n) % p.n
	return p.cur
}
