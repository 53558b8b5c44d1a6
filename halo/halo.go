// Package halo moves owner values into ghost copies between in-process parts
// using the receive layout of each part's comm pattern.
package halo

import (
	"fmt"
	"sort"

	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/notargets/halomesh/commpattern"
	"github.com/notargets/halomesh/utils"
)

type Kind uint8

const (
	Request Kind = iota
	Values
	Removal
)

func (k Kind) String() string {
	switch k {
	case Request:
		return "Request"
	case Values:
		return "Values"
	case Removal:
		return "Removal"
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

type Message struct {
	From   int
	Kind   Kind
	GIDs   []uint64
	Ranks  []int // Removal only
	Values []float64
}

// Network connects NP parts running in one process.
type Network struct {
	NP  int
	box *utils.MailBox[*Message]
}

func NewNetwork(NP int) *Network {
	return &Network{NP: NP, box: utils.NewMailBox[*Message](NP)}
}

func (net *Network) receive(part int) []*Message {
	net.box.ReceiveMyMessages(part)
	msgs := net.box.Messages(part)
	out := make([]*Message, len(msgs))
	copy(out, msgs)
	net.box.ClearMyMessages(part)
	return out
}

// drain discards everything in flight after a failed phase
func (net *Network) drain() {
	for np := 0; np < net.NP; np++ {
		net.box.DeliverMyMessages(np)
	}
	for np := 0; np < net.NP; np++ {
		net.receive(np)
	}
}

// Exchanger is one part's endpoint. After Setup it knows which of its
// updatable entries every other part needs, in that part's receive order.
type Exchanger struct {
	net       *Network
	part      int
	pattern   *commpattern.Pattern
	sends     map[int][]int // requesting rank -> local indices to send
	sendRanks []int
	ready     bool
	gen       uint64 // pattern generation the send lists were built for
}

func NewExchanger(net *Network, part int, p *commpattern.Pattern) (*Exchanger, error) {
	switch {
	case part < 0 || part >= net.NP:
		return nil, fmt.Errorf("%w: part %d not in [0,%d)", commpattern.ErrSetup, part, net.NP)
	case p == nil:
		return nil, fmt.Errorf("%w: part %d has no comm pattern", commpattern.ErrSetup, part)
	case p.Rank() != part:
		return nil, fmt.Errorf("%w: comm pattern %q has rank %d, exchanger is part %d",
			commpattern.ErrSetup, p.Name(), p.Rank(), part)
	}
	return &Exchanger{net: net, part: part, pattern: p}, nil
}

func (ex *Exchanger) Part() int                     { return ex.part }
func (ex *Exchanger) Pattern() *commpattern.Pattern { return ex.pattern }
func (ex *Exchanger) Ready() bool                   { return ex.checkReady() == nil }

// SendCount is the number of values this part sends to rank on each update.
func (ex *Exchanger) SendCount(rank int) int { return len(ex.sends[rank]) }

// PostRequests asks every owner for the global ids held here as ghosts.
func (ex *Exchanger) PostRequests() {
	p := ex.pattern
	for _, r := range p.RecvRanks() {
		block := p.RecvBlock(r)
		gids := make([]uint64, len(block))
		for n, i := range block {
			gids[n] = p.Entry(i).GID
		}
		ex.net.box.PostMessage(ex.part, r, &Message{From: ex.part, Kind: Request, GIDs: gids})
	}
	ex.net.box.DeliverMyMessages(ex.part)
}

// ReadRequests resolves the requested ids to local indices. Every requested
// id must be held here and be updatable.
func (ex *Exchanger) ReadRequests() (err error) {
	ex.ready = false
	sends := make(map[int][]int)
	for _, m := range ex.net.receive(ex.part) {
		if m.Kind != Request {
			err = multierr.Append(err, fmt.Errorf("%w: part %d got a %s message from %d while reading requests",
				commpattern.ErrSetup, ex.part, m.Kind, m.From))
			continue
		}
		loc := make([]int, len(m.GIDs))
		for n, gid := range m.GIDs {
			i, ok := ex.pattern.LocalIndex(gid)
			if !ok || !ex.pattern.IsUpdatable(i) {
				err = multierr.Append(err, fmt.Errorf("%w: part %d asked part %d for global id %d, which it does not own",
					commpattern.ErrSetup, m.From, ex.part, gid))
				continue
			}
			loc[n] = i
		}
		sends[m.From] = loc
	}
	if err != nil {
		return
	}
	ex.sends = sends
	ex.sendRanks = ex.sendRanks[:0]
	for r := range sends {
		ex.sendRanks = append(ex.sendRanks, r)
	}
	sort.Ints(ex.sendRanks)
	ex.gen = ex.pattern.Generation()
	ex.ready = true
	return
}

func (ex *Exchanger) checkReady() error {
	switch {
	case !ex.ready:
		return fmt.Errorf("%w: part %d exchanged values before setup", commpattern.ErrSetup, ex.part)
	case ex.gen != ex.pattern.Generation():
		return fmt.Errorf("%w: comm pattern %q of part %d was rebuilt after setup",
			commpattern.ErrSetup, ex.pattern.Name(), ex.part)
	}
	return nil
}

// PostValues sends the owned values requested by each part. values is laid
// out by local index.
func (ex *Exchanger) PostValues(values []float64) error {
	if err := ex.checkReady(); err != nil {
		return err
	}
	if len(values) != ex.pattern.Len() {
		return fmt.Errorf("%w: part %d has %d values for %d entries",
			commpattern.ErrSizeMismatch, ex.part, len(values), ex.pattern.Len())
	}
	for _, r := range ex.sendRanks {
		loc := ex.sends[r]
		vals := make([]float64, len(loc))
		for n, i := range loc {
			vals[n] = values[i]
		}
		ex.net.box.PostMessage(ex.part, r, &Message{From: ex.part, Kind: Values, Values: vals})
	}
	ex.net.box.DeliverMyMessages(ex.part)
	return nil
}

// ReadValues writes the inbound values into the ghost slots of values.
func (ex *Exchanger) ReadValues(values []float64) (err error) {
	p := ex.pattern
	if err = ex.checkReady(); err != nil {
		ex.net.receive(ex.part)
		return
	}
	if len(values) != p.Len() {
		ex.net.receive(ex.part)
		return fmt.Errorf("%w: part %d has %d values for %d entries",
			commpattern.ErrSizeMismatch, ex.part, len(values), p.Len())
	}
	got := make(map[int]bool)
	for _, m := range ex.net.receive(ex.part) {
		block := p.RecvBlock(m.From)
		if m.Kind != Values || len(block) != len(m.Values) {
			err = multierr.Append(err, fmt.Errorf("%w: part %d expects %d values from %d, got %d in a %s message",
				commpattern.ErrSizeMismatch, ex.part, len(block), m.From, len(m.Values), m.Kind))
			continue
		}
		for n, i := range block {
			values[i] = m.Values[n]
		}
		got[m.From] = true
	}
	for _, r := range p.RecvRanks() {
		if !got[r] {
			err = multierr.Append(err, fmt.Errorf("%w: part %d received nothing from %d",
				commpattern.ErrSizeMismatch, ex.part, r))
		}
	}
	return
}

func each(exs []*Exchanger, fn func(ex *Exchanger) error) error {
	var eg errgroup.Group
	for _, ex := range exs {
		ex := ex
		eg.Go(func() error { return fn(ex) })
	}
	return eg.Wait()
}

func network(exs []*Exchanger) (*Network, error) {
	if len(exs) == 0 {
		return nil, fmt.Errorf("%w: no exchangers", commpattern.ErrSetup)
	}
	net := exs[0].net
	for np, ex := range exs {
		if ex.net != net || ex.part != np {
			return nil, fmt.Errorf("%w: exchanger %d is not part %d of a shared network",
				commpattern.ErrSetup, np, np)
		}
	}
	if len(exs) != net.NP {
		return nil, fmt.Errorf("%w: %d exchangers for %d parts", commpattern.ErrSetup, len(exs), net.NP)
	}
	return net, nil
}

// Setup exchanges requests between all parts, exs[p] being part p. It must
// run again after any pattern is rebuilt.
func Setup(exs []*Exchanger) error {
	if _, err := network(exs); err != nil {
		return err
	}
	if err := each(exs, func(ex *Exchanger) error {
		ex.PostRequests()
		return nil
	}); err != nil {
		return err
	}
	return each(exs, (*Exchanger).ReadRequests)
}

// Update refreshes the ghost values of every part, values[p] being part p's
// array by local index. Patterns are frozen for the duration.
func Update(exs []*Exchanger, values [][]float64) (err error) {
	var net *Network
	if net, err = network(exs); err != nil {
		return
	}
	if len(values) != len(exs) {
		return fmt.Errorf("%w: %d value arrays for %d parts", commpattern.ErrSizeMismatch, len(values), len(exs))
	}
	for _, ex := range exs {
		ex.pattern.Freeze()
	}
	defer func() {
		for _, ex := range exs {
			ex.pattern.Unfreeze()
		}
	}()
	if err = each(exs, func(ex *Exchanger) error {
		return ex.PostValues(values[ex.part])
	}); err != nil {
		net.drain()
		return
	}
	return each(exs, func(ex *Exchanger) error {
		return ex.ReadValues(values[ex.part])
	})
}

// BroadcastRemovals forwards the removals each part flagged for all ranks on
// its last rebuild. Receivers drop those ids, rebuild, and the exchange is set
// up again. A part whose rebuild fails keeps a stale exchanger, which refuses
// to exchange until the next successful Setup.
func BroadcastRemovals(exs []*Exchanger) error {
	if _, err := network(exs); err != nil {
		return err
	}
	if err := each(exs, func(ex *Exchanger) error {
		bcasts := ex.pattern.Broadcasts()
		if len(bcasts) == 0 {
			return nil
		}
		m := &Message{
			From:  ex.part,
			Kind:  Removal,
			GIDs:  make([]uint64, len(bcasts)),
			Ranks: make([]int, len(bcasts)),
		}
		for n, b := range bcasts {
			m.GIDs[n], m.Ranks[n] = b.GID, b.Rank
		}
		ex.net.box.PostMessageToAll(ex.part, m)
		ex.net.box.DeliverMyMessages(ex.part)
		return nil
	}); err != nil {
		return err
	}
	rebuildErr := each(exs, func(ex *Exchanger) error {
		var removed int
		for _, m := range ex.net.receive(ex.part) {
			if m.Kind != Removal {
				return fmt.Errorf("%w: part %d got a %s message from %d while reading removals",
					commpattern.ErrSetup, ex.part, m.Kind, m.From)
			}
			for n, gid := range m.GIDs {
				if err := ex.pattern.Remove(gid, m.Ranks[n], false); err != nil {
					return err
				}
				removed++
			}
		}
		if removed == 0 {
			return nil
		}
		return ex.pattern.Rebuild()
	})
	// parts that did rebuild still need fresh send lists
	return multierr.Append(rebuildErr, Setup(exs))
}
