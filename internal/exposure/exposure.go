package exposure

import (
	"sort"

	"lottery_service/internal/bet"
	"lottery_service/internal/draw"
)

// Cell is what is riding on one outcome dimension: the stake of the bets that would win,
// and what the platform would pay them.
type Cell struct {
	Stake  float64 `json:"stake"`
	Payout float64 `json:"payout"`
}

// Pair identifies two ranks whose joint values decide a bet (sums, dragon/tiger).
type Pair struct {
	A int `json:"a"`
	B int `json:"b"`
}

// PairGrid is indexed by the values drawn at Pair.A and Pair.B.
type PairGrid [draw.Ranks + 1][draw.Ranks + 1]Cell

// Exposure is the platform's liability for every candidate outcome. Single-rank bets are
// tracked per (rank, value); bets that depend on two ranks are tracked per joint value
// of that pair, never per single rank. ByCategory holds the same grids split by bet
// category; the top-level grids are their sum and are what Payout prices.
type Exposure struct {
	Bets       int                              `json:"bets"`
	Stake      float64                          `json:"stake"`
	Single     [draw.Ranks][draw.Ranks + 1]Cell `json:"single"`
	Pairs      map[Pair]*PairGrid               `json:"-"`
	ByCategory map[string]*Exposure             `json:"by_category,omitempty"`
}

func New() *Exposure {
	return &Exposure{Pairs: make(map[Pair]*PairGrid), ByCategory: make(map[string]*Exposure)}
}

func newLeaf() *Exposure {
	return &Exposure{Pairs: make(map[Pair]*PairGrid)}
}

// Category returns the exposure of one bet category, or nil when nothing rides on it.
func (e *Exposure) Category(category string) *Exposure {
	if e == nil {
		return nil
	}
	return e.ByCategory[category]
}

// Add records count bets on sel totalling stake, paying payout if they win.
func (e *Exposure) Add(sel bet.Selection, count int, stake, payout float64) {
	e.add(sel, count, stake, payout)
	if e.ByCategory == nil {
		return
	}
	c, ok := e.ByCategory[sel.Category]
	if !ok {
		c = newLeaf()
		e.ByCategory[sel.Category] = c
	}
	c.add(sel, count, stake, payout)
}

func (e *Exposure) add(sel bet.Selection, count int, stake, payout float64) {
	e.Bets += count
	e.Stake += stake

	ranks := sel.Ranks()
	switch len(ranks) {
	case 1:
		row := &e.Single[ranks[0]-1]
		for v := 1; v <= draw.Ranks; v++ {
			if sel.Matches(v) {
				row[v].Stake += stake
				row[v].Payout += payout
			}
		}
	case 2:
		p := Pair{A: ranks[0], B: ranks[1]}
		grid, ok := e.Pairs[p]
		if !ok {
			grid = &PairGrid{}
			e.Pairs[p] = grid
		}
		for x := 1; x <= draw.Ranks; x++ {
			for y := 1; y <= draw.Ranks; y++ {
				if x != y && sel.Matches(x, y) {
					grid[x][y].Stake += stake
					grid[x][y].Payout += payout
				}
			}
		}
	}
}

// Payout is the total the platform would pay if r were drawn.
func (e *Exposure) Payout(r draw.Result) float64 {
	if e == nil {
		return 0
	}
	total := 0.0
	for i := range e.Single {
		total += e.Single[i][r[i]].Payout
	}
	for p, grid := range e.Pairs {
		total += grid[r.At(p.A)][r.At(p.B)].Payout
	}
	return total
}

func (e *Exposure) Merge(o *Exposure) {
	if o == nil {
		return
	}
	e.merge(o)
	if e.ByCategory == nil {
		return
	}
	for name, oc := range o.ByCategory {
		c, ok := e.ByCategory[name]
		if !ok {
			c = newLeaf()
			e.ByCategory[name] = c
		}
		c.merge(oc)
	}
}

func (e *Exposure) merge(o *Exposure) {
	e.Bets += o.Bets
	e.Stake += o.Stake
	for i := range e.Single {
		for v := range e.Single[i] {
			e.Single[i][v].Stake += o.Single[i][v].Stake
			e.Single[i][v].Payout += o.Single[i][v].Payout
		}
	}
	for p, og := range o.Pairs {
		grid, ok := e.Pairs[p]
		if !ok {
			grid = &PairGrid{}
			e.Pairs[p] = grid
		}
		for x := range og {
			for y := range og[x] {
				grid[x][y].Stake += og[x][y].Stake
				grid[x][y].Payout += og[x][y].Payout
			}
		}
	}
}

func (e *Exposure) Empty() bool { return e == nil || e.Bets == 0 }

// Book is the exposure of one period, in total and per member.
type Book struct {
	PeriodID string
	Total    *Exposure
	ByMember map[string]*Exposure
}

func NewBook(periodID string) *Book {
	return &Book{PeriodID: periodID, Total: New(), ByMember: make(map[string]*Exposure)}
}

// Scoped merges the exposure of the given members. Members with no bets are ignored.
func (b *Book) Scoped(memberIDs []string) *Exposure {
	out := New()
	for _, id := range memberIDs {
		out.Merge(b.ByMember[id])
	}
	return out
}

// Bettors lists every member with at least one unsettled bet, sorted.
func (b *Book) Bettors() []string {
	out := make([]string, 0, len(b.ByMember))
	for id := range b.ByMember {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
