package lineage

// scope tracks the names visible while building one query level or block.
// CTE names live on the query level that declared them; table bindings live
// on the SELECT block whose FROM clause introduced them. Lookups walk
// outward through parent scopes.
type scope struct {
	parent   *scope
	path     string            // scope path used to qualify colliding keys
	ctes     map[string]string // CTE name -> registry key
	bindings map[string]string // alias or table name -> registry key
	refs     []string          // one key per FROM/JOIN factor, in order
}

func newScope(parent *scope, path string) *scope {
	return &scope{
		parent:   parent,
		path:     path,
		ctes:     make(map[string]string),
		bindings: make(map[string]string),
	}
}

func (s *scope) child(path string) *scope {
	return newScope(s, path)
}

// declareCTE makes a CTE name visible to this scope and its descendants.
func (s *scope) declareCTE(name, key string) {
	s.ctes[name] = key
}

// lookupCTE finds the innermost CTE declared under name.
func (s *scope) lookupCTE(name string) (string, bool) {
	for sc := s; sc != nil; sc = sc.parent {
		if key, ok := sc.ctes[name]; ok {
			return key, true
		}
	}
	return "", false
}

// bind makes name refer to key within this scope.
func (s *scope) bind(name, key string) {
	if name == "" {
		return
	}
	s.bindings[name] = key
}

// reference records one FROM/JOIN factor reading key. A table joined to
// itself counts twice.
func (s *scope) reference(key string) {
	s.refs = append(s.refs, key)
}

// resolve finds the table a qualifier refers to, walking outward for
// correlated references.
func (s *scope) resolve(qualifier string) (string, bool) {
	for sc := s; sc != nil; sc = sc.parent {
		if key, ok := sc.bindings[qualifier]; ok {
			return key, true
		}
	}
	return "", false
}

// soleTable returns the table of the only factor in this scope's FROM
// clause, if there is exactly one.
func (s *scope) soleTable() (string, bool) {
	if len(s.refs) == 1 {
		return s.refs[0], true
	}
	return "", false
}
