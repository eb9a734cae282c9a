package query

import (
	"fmt"
	"strings"
)

// Format renders expr back into the grammar's surface syntax such
// that Parse(Format(expr)) reconstructs an equal expression tree.
func Format(expr *Expr) string {
	if expr == nil || expr.Kind == KindEmpty {
		return ""
	}
	return formatNode(expr, KindEmpty, false)
}

func formatNode(e *Expr, parent Kind, isRight bool) string {
	switch e.Kind {
	case KindEmpty:
		return ""
	case KindTag:
		return e.Key
	case KindKV:
		if e.IsInt {
			return fmt.Sprintf("%s=%d", e.Key, e.IntValue)
		}
		return fmt.Sprintf("%s=%s", e.Key, quote(e.StrValue))
	case KindHasKey:
		return e.Key + "?"
	case KindNumericRange:
		switch {
		case e.Lo != nil:
			return fmt.Sprintf("%s>=%d", e.Key, *e.Lo)
		case e.Hi != nil:
			return fmt.Sprintf("%s<=%d", e.Key, *e.Hi)
		default:
			return ""
		}
	case KindParent:
		return fmt.Sprintf("@parent(%s)", quote(e.BlobID))
	case KindAncestor:
		return fmt.Sprintf("@ancestor(%s)", quote(e.BlobID))
	case KindOwner:
		return fmt.Sprintf("@owner(%s)", quote(e.Owner))
	case KindNot:
		child := formatNode(e.Left, KindNot, false)
		if needsParens(e.Left.Kind, KindNot, false) {
			child = "(" + child + ")"
		}
		return "!" + child
	case KindAnd:
		return formatBinary(e, "&&", parent, isRight)
	case KindOr:
		return formatBinary(e, "||", parent, isRight)
	default:
		return ""
	}
}

func formatBinary(e *Expr, op string, parent Kind, isRight bool) string {
	left := formatNode(e.Left, e.Kind, false)
	if needsParens(e.Left.Kind, e.Kind, false) {
		left = "(" + left + ")"
	}
	right := formatNode(e.Right, e.Kind, true)
	if needsParens(e.Right.Kind, e.Kind, true) {
		right = "(" + right + ")"
	}
	return left + " " + op + " " + right
}

// needsParens reports whether a node of kind child, appearing as the
// left/right operand (isRight) of a node of kind parent, must be
// parenthesized to parse back to the same tree.
func needsParens(child, parent Kind, isRight bool) bool {
	switch child {
	case KindAnd:
		switch parent {
		case KindOr, KindNot:
			return true
		case KindAnd:
			return isRight
		}
		return false
	case KindOr:
		switch parent {
		case KindAnd, KindNot:
			return true
		case KindOr:
			return isRight
		}
		return false
	default:
		return false
	}
}

func quote(s string) string {
	var b strings.Builder
	b.WriteByte('"')
	for _, r := range s {
		switch r {
		case '\\', '"':
			b.WriteByte('\\')
			b.WriteRune(r)
		default:
			b.WriteRune(r)
		}
	}
	b.WriteByte('"')
	return b.String()
}
