package cfg

import "fmt"

// Validate checks the structural invariants the code generator assumes:
// cluster entries carry an entry convention, internal fragments do not,
// labels are unique per unit, and every Goto targets a fragment of the
// same cluster.
func (u *CompUnit) Validate() error {
	seen := make(map[LVar]bool)
	for ci, c := range u.All() {
		if len(c.Frags) == 0 {
			return fmt.Errorf("cfg: cluster %d has no fragments", ci)
		}
		if !c.Entry().Kind.IsEntry() {
			return fmt.Errorf("cfg: cluster %d entry fragment has kind %v", ci, c.Entry().Kind)
		}
		local := make(map[LVar]bool)
		for fi, frag := range c.Frags {
			if fi > 0 && frag.Kind != Internal {
				return fmt.Errorf("cfg: cluster %d fragment %d has entry kind %v", ci, fi, frag.Kind)
			}
			if seen[frag.Label] {
				return fmt.Errorf("cfg: duplicate label %d", frag.Label)
			}
			seen[frag.Label] = true
			local[frag.Label] = true
			if frag.Body == nil {
				return fmt.Errorf("cfg: fragment %d has no body", frag.Label)
			}
		}
		for _, frag := range c.Frags {
			if err := checkGotos(frag.Body, local); err != nil {
				return fmt.Errorf("cfg: cluster %d: %w", ci, err)
			}
		}
	}
	return nil
}

func checkGotos(s *Stm, local map[LVar]bool) error {
	if s == nil {
		return nil
	}
	if s.Kind == StmGoto && !local[s.Lab] {
		return fmt.Errorf("goto to label %d outside the cluster", s.Lab)
	}
	for _, arm := range s.Arms {
		if err := checkGotos(arm, local); err != nil {
			return err
		}
	}
	for _, arm := range []*Stm{s.TrueArm, s.FalseArm, s.Cont} {
		if err := checkGotos(arm, local); err != nil {
			return err
		}
	}
	return nil
}
