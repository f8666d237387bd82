package grammar

// Visitor receives every key/value pair reached by DFS.
type Visitor func(key string, value any)

// DFS walks node pre-order and calls visit for every key/value pair:
//
//   - a *Grammar yields (rule name, *Rule) for each rule, then ("rest", *Grammar)
//   - a *Rule yields ("pattern", *regexp2.Regexp), ("lookbehind", bool) and
//     ("inside", *Grammar) when set
//   - a *Registry yields (grammar name, *Grammar) for each grammar
//
// Rules are passed by pointer so visitors may rewrite them in place. A grammar
// reachable through several paths is visited on each path; cycles are cut.
func DFS(node any, visit Visitor) {
	dfs(node, visit, make(map[*Grammar]bool))
}

func dfs(node any, visit Visitor, onPath map[*Grammar]bool) {
	switch n := node.(type) {
	case *Registry:
		for _, name := range n.Names() {
			g, ok := n.Lookup(name)
			if !ok {
				continue
			}
			visit(name, g)
			dfs(g, visit, onPath)
		}
	case *Grammar:
		if n == nil || onPath[n] {
			return
		}
		onPath[n] = true
		defer delete(onPath, n)
		for i := range n.rules {
			r := &n.rules[i]
			visit(r.Name, r)
			dfs(r, visit, onPath)
		}
		if n.Rest != nil {
			visit("rest", n.Rest)
			dfs(n.Rest, visit, onPath)
		}
	case *Rule:
		if n.Pattern != nil {
			visit("pattern", n.Pattern)
		}
		visit("lookbehind", n.Lookbehind)
		if n.Inside != nil {
			visit("inside", n.Inside)
			dfs(n.Inside, visit, onPath)
		}
	}
}
