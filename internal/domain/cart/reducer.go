package cart

// ActionKind enumerates the cart mutations
type ActionKind int

const (
	ActionAdd ActionKind = iota
	ActionRemove
	ActionUpdateQuantity
	ActionReplace
	actionRestore
)

func (k ActionKind) String() string {
	switch k {
	case ActionAdd:
		return "add"
	case ActionRemove:
		return "remove"
	case ActionUpdateQuantity:
		return "update_quantity"
	case ActionReplace:
		return "replace"
	case actionRestore:
		return "restore"
	}
	return "unknown"
}

// Action is a single state transition
type Action struct {
	Kind     ActionKind
	Line     Line   // add
	Key      Key    // remove, update, restore
	Quantity int    // update
	Lines    []Line // replace
	prev     *Line  // restore
}

// AddAction adds line, merging with an existing line of the same key
func AddAction(line Line) Action {
	return Action{Kind: ActionAdd, Line: line, Key: line.Key()}
}

// RemoveAction deletes the line with key
func RemoveAction(key Key) Action {
	return Action{Kind: ActionRemove, Key: key}
}

// UpdateQuantityAction sets the quantity of the line with key, never below 1
func UpdateQuantityAction(key Key, quantity int) Action {
	return Action{Kind: ActionUpdateQuantity, Key: key, Quantity: quantity}
}

// ReplaceAction swaps the whole line set, typically for a server payload
func ReplaceAction(lines []Line) Action {
	return Action{Kind: ActionReplace, Lines: lines}
}

// restoreAction puts prev back under key, or deletes key when prev is nil
func restoreAction(key Key, prev *Line) Action {
	return Action{Kind: actionRestore, Key: key, prev: prev}
}

// Reduce applies a to lines and returns the new line set. The input slice is
// never modified.
func Reduce(lines []Line, a Action) []Line {
	switch a.Kind {
	case ActionAdd:
		qty := a.Line.Quantity
		if qty < 1 {
			qty = 1
		}
		out := clone(lines)
		if i := indexOf(out, a.Line.Key()); i >= 0 {
			out[i].Quantity += qty
			return out
		}
		line := a.Line
		line.Quantity = qty
		return append(out, line)

	case ActionRemove:
		out := make([]Line, 0, len(lines))
		for _, l := range lines {
			if l.Key() != a.Key {
				out = append(out, l)
			}
		}
		return out

	case ActionUpdateQuantity:
		qty := a.Quantity
		if qty < 1 {
			qty = 1
		}
		out := clone(lines)
		if i := indexOf(out, a.Key); i >= 0 {
			out[i].Quantity = qty
		}
		return out

	case ActionReplace:
		return dedupe(a.Lines)

	case actionRestore:
		if a.prev == nil {
			return Reduce(lines, RemoveAction(a.Key))
		}
		out := clone(lines)
		if i := indexOf(out, a.Key); i >= 0 {
			out[i] = *a.prev
			return out
		}
		return append(out, *a.prev)
	}
	return clone(lines)
}

// compensation returns the action that undoes a when applied to the result
// of Reduce(prev, a)
func compensation(prev []Line, a Action) Action {
	switch a.Kind {
	case ActionAdd, ActionRemove, ActionUpdateQuantity:
		if i := indexOf(prev, a.Key); i >= 0 {
			line := prev[i]
			return restoreAction(a.Key, &line)
		}
		return restoreAction(a.Key, nil)
	}
	return ReplaceAction(clone(prev))
}

func indexOf(lines []Line, key Key) int {
	for i, l := range lines {
		if l.Key() == key {
			return i
		}
	}
	return -1
}

func clone(lines []Line) []Line {
	out := make([]Line, len(lines))
	copy(out, lines)
	return out
}

// dedupe merges lines sharing a key by summing quantities
func dedupe(lines []Line) []Line {
	out := make([]Line, 0, len(lines))
	for _, l := range lines {
		if i := indexOf(out, l.Key()); i >= 0 {
			out[i].Quantity += l.Quantity
			continue
		}
		out = append(out, l)
	}
	return out
}
