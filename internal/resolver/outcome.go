package resolver

// Outcome is the result of one step of a resolution session: *NeedsClock,
// *NeedsXLinks or *Done.
type Outcome interface {
	outcome()
}

// NeedsClock suspends the session until the clock resource at URL has been
// fetched. The session continues through Resume.
type NeedsClock struct {
	url  string
	sess session
	r    *Resolver
}

func (*NeedsClock) outcome() {}

// URL is the clock resource to fetch.
func (n *NeedsClock) URL() string { return n.url }

// Resume continues the session with the fetch result. A failed fetch is
// recorded as a warning; the clock is never requested again in this session.
func (n *NeedsClock) Resume(res ClockResult) (Outcome, error) {
	return n.r.step(n.r.applyClockResult(n.sess, res))
}

// NeedsXLinks suspends the session until every listed xlink has been fetched
// and tokenized.
type NeedsXLinks struct {
	targets []xlinkTarget
	sess    session
	r       *Resolver
}

func (*NeedsXLinks) outcome() {}

// URLs lists the xlinks to fetch, in period order, one per placeholder.
func (n *NeedsXLinks) URLs() []string {
	urls := make([]string, len(n.targets))
	for i, t := range n.targets {
		urls[i] = t.href
	}
	return urls
}

// Sources lists, for each URL, the document the placeholder was read from:
// the xlink payload URL for placeholders spliced in by an earlier round, or
// "" for placeholders of the manifest itself. Relative URLs resolve against
// it.
func (n *NeedsXLinks) Sources() []string {
	src := make([]string, len(n.targets))
	for i, t := range n.targets {
		if p, ok := n.sess.provenance.lookup(t.key); ok {
			src[i] = p.URL
		}
	}
	return src
}

// Round is the 1-based xlink round this continuation belongs to.
func (n *NeedsXLinks) Round() int { return n.sess.rounds + 1 }

// Resume continues the session with one result per URL, in the same order.
// A result count that differs from URLs fails with ErrXLinkCountMismatch.
func (n *NeedsXLinks) Resume(results []XLinkResult) (Outcome, error) {
	next, err := n.r.spliceXLinks(n.sess, n.targets, results)
	if err != nil {
		return nil, err
	}
	return n.r.step(next)
}

// Done carries the resolved manifest and every warning collected on the way.
type Done struct {
	Manifest *Manifest
	Warnings []error
}

func (*Done) outcome() {}
