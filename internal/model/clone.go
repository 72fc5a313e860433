package model

// Clone returns a copy safe to mutate as an edit draft: scalar fields are
// copied, the extra map is cloned element-wise so the draft never aliases the
// original's collections.
func (r *DailyReport) Clone() *DailyReport {
	if r == nil {
		return nil
	}
	c := *r
	if r.Extra != nil {
		c.Extra = make(map[string]any, len(r.Extra))
		for k, v := range r.Extra {
			c.Extra[k] = v
		}
	}
	return &c
}

// Clone copies the record with a fresh positions slice, element-wise.
func (r *ServiceRecord) Clone() *ServiceRecord {
	if r == nil {
		return nil
	}
	c := *r
	c.Positions = make([]Position, len(r.Positions))
	copy(c.Positions, r.Positions)
	return &c
}
