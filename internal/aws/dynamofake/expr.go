package dynamofake

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"unicode"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

type tokenKind int

const (
	tokIdent tokenKind = iota
	tokLParen
	tokRParen
	tokComma
	tokOp
)

type token struct {
	kind tokenKind
	text string
}

func tokenize(s string) ([]token, error) {
	var toks []token
	for i := 0; i < len(s); {
		c := rune(s[i])
		switch {
		case unicode.IsSpace(c):
			i++
		case c == '(':
			toks = append(toks, token{tokLParen, "("})
			i++
		case c == ')':
			toks = append(toks, token{tokRParen, ")"})
			i++
		case c == ',':
			toks = append(toks, token{tokComma, ","})
			i++
		case c == '=' || c == '+' || c == '-':
			toks = append(toks, token{tokOp, string(c)})
			i++
		case c == '<' || c == '>':
			if i+1 < len(s) && (s[i+1] == '=' || (c == '<' && s[i+1] == '>')) {
				toks = append(toks, token{tokOp, s[i : i+2]})
				i += 2
				continue
			}
			toks = append(toks, token{tokOp, string(c)})
			i++
		case c == '#' || c == ':' || c == '_' || unicode.IsLetter(c) || unicode.IsDigit(c):
			j := i + 1
			for j < len(s) && (s[j] == '_' || unicode.IsLetter(rune(s[j])) || unicode.IsDigit(rune(s[j]))) {
				j++
			}
			toks = append(toks, token{tokIdent, s[i:j]})
			i = j
		default:
			return nil, fmt.Errorf("dynamofake: unexpected character %q in %q", c, s)
		}
	}
	return toks, nil
}

type evaluator struct {
	toks   []token
	pos    int
	names  map[string]string
	values map[string]types.AttributeValue
	item   map[string]types.AttributeValue
}

func (e *evaluator) peek() *token {
	if e.pos >= len(e.toks) {
		return nil
	}
	return &e.toks[e.pos]
}

func (e *evaluator) next() (token, error) {
	if e.pos >= len(e.toks) {
		return token{}, fmt.Errorf("dynamofake: unexpected end of expression")
	}
	t := e.toks[e.pos]
	e.pos++
	return t, nil
}

func (e *evaluator) expect(kind tokenKind, text string) error {
	t, err := e.next()
	if err != nil {
		return err
	}
	if t.kind != kind || (text != "" && t.text != text) {
		return fmt.Errorf("dynamofake: expected %q, got %q", text, t.text)
	}
	return nil
}

func (e *evaluator) isKeyword(word string) bool {
	t := e.peek()
	return t != nil && t.kind == tokIdent && strings.EqualFold(t.text, word)
}

func (e *evaluator) attrName(tok string) (string, error) {
	if strings.HasPrefix(tok, "#") {
		n, ok := e.names[tok]
		if !ok {
			return "", fmt.Errorf("dynamofake: undefined attribute name %s", tok)
		}
		return n, nil
	}
	if strings.HasPrefix(tok, ":") {
		return "", fmt.Errorf("dynamofake: %s is not a path", tok)
	}
	return tok, nil
}

// operand resolves a path or value placeholder. The bool reports whether it exists.
func (e *evaluator) operand(tok string) (types.AttributeValue, bool, error) {
	if strings.HasPrefix(tok, ":") {
		v, ok := e.values[tok]
		if !ok {
			return nil, false, fmt.Errorf("dynamofake: undefined attribute value %s", tok)
		}
		return v, true, nil
	}
	name, err := e.attrName(tok)
	if err != nil {
		return nil, false, err
	}
	v, ok := e.item[name]
	return v, ok, nil
}

func evalCondition(expr *string, names map[string]string, values map[string]types.AttributeValue, item map[string]types.AttributeValue) (bool, error) {
	if expr == nil || strings.TrimSpace(*expr) == "" {
		return true, nil
	}
	toks, err := tokenize(*expr)
	if err != nil {
		return false, err
	}
	e := &evaluator{toks: toks, names: names, values: values, item: item}
	ok, err := e.orExpr()
	if err != nil {
		return false, err
	}
	if e.pos != len(e.toks) {
		return false, fmt.Errorf("dynamofake: trailing tokens in %q", *expr)
	}
	return ok, nil
}

func (e *evaluator) orExpr() (bool, error) {
	left, err := e.andExpr()
	if err != nil {
		return false, err
	}
	for e.isKeyword("OR") {
		e.pos++
		right, err := e.andExpr()
		if err != nil {
			return false, err
		}
		left = left || right
	}
	return left, nil
}

func (e *evaluator) andExpr() (bool, error) {
	left, err := e.unary()
	if err != nil {
		return false, err
	}
	for e.isKeyword("AND") {
		e.pos++
		right, err := e.unary()
		if err != nil {
			return false, err
		}
		left = left && right
	}
	return left, nil
}

func (e *evaluator) unary() (bool, error) {
	if e.isKeyword("NOT") {
		e.pos++
		v, err := e.unary()
		return !v, err
	}
	t := e.peek()
	if t == nil {
		return false, fmt.Errorf("dynamofake: unexpected end of condition")
	}
	if t.kind == tokLParen {
		e.pos++
		v, err := e.orExpr()
		if err != nil {
			return false, err
		}
		return v, e.expect(tokRParen, ")")
	}
	if t.kind == tokIdent && (t.text == "attribute_exists" || t.text == "attribute_not_exists") {
		fn := t.text
		e.pos++
		if err := e.expect(tokLParen, "("); err != nil {
			return false, err
		}
		p, err := e.next()
		if err != nil {
			return false, err
		}
		if err := e.expect(tokRParen, ")"); err != nil {
			return false, err
		}
		name, err := e.attrName(p.text)
		if err != nil {
			return false, err
		}
		_, exists := e.item[name]
		if fn == "attribute_exists" {
			return exists, nil
		}
		return !exists, nil
	}
	return e.comparison()
}

func (e *evaluator) comparison() (bool, error) {
	lt, err := e.next()
	if err != nil {
		return false, err
	}
	op, err := e.next()
	if err != nil {
		return false, err
	}
	if op.kind != tokOp {
		return false, fmt.Errorf("dynamofake: expected comparator, got %q", op.text)
	}
	rt, err := e.next()
	if err != nil {
		return false, err
	}
	lv, lok, err := e.operand(lt.text)
	if err != nil {
		return false, err
	}
	rv, rok, err := e.operand(rt.text)
	if err != nil {
		return false, err
	}
	if !lok || !rok {
		return op.text == "<>", nil
	}
	if op.text == "=" || op.text == "<>" {
		eq := equal(lv, rv)
		if op.text == "=" {
			return eq, nil
		}
		return !eq, nil
	}
	c, ok := compare(lv, rv)
	if !ok {
		return false, nil
	}
	switch op.text {
	case "<":
		return c < 0, nil
	case "<=":
		return c <= 0, nil
	case ">":
		return c > 0, nil
	case ">=":
		return c >= 0, nil
	}
	return false, fmt.Errorf("dynamofake: unsupported comparator %q", op.text)
}

func equal(a, b types.AttributeValue) bool {
	if c, ok := compare(a, b); ok {
		return c == 0
	}
	if ab, ok := a.(*types.AttributeValueMemberBOOL); ok {
		if bb, ok := b.(*types.AttributeValueMemberBOOL); ok {
			return ab.Value == bb.Value
		}
		return false
	}
	return reflect.DeepEqual(a, b)
}

func compare(a, b types.AttributeValue) (int, bool) {
	switch av := a.(type) {
	case *types.AttributeValueMemberN:
		bv, ok := b.(*types.AttributeValueMemberN)
		if !ok {
			return 0, false
		}
		x, err1 := strconv.ParseFloat(av.Value, 64)
		y, err2 := strconv.ParseFloat(bv.Value, 64)
		if err1 != nil || err2 != nil {
			return 0, false
		}
		switch {
		case x < y:
			return -1, true
		case x > y:
			return 1, true
		}
		return 0, true
	case *types.AttributeValueMemberS:
		bv, ok := b.(*types.AttributeValueMemberS)
		if !ok {
			return 0, false
		}
		return strings.Compare(av.Value, bv.Value), true
	}
	return 0, false
}

func applyUpdate(key map[string]types.AttributeValue, current map[string]types.AttributeValue, expr *string, names map[string]string, values map[string]types.AttributeValue) (map[string]types.AttributeValue, error) {
	next := copyItem(current)
	if next == nil {
		next = copyItem(key)
	}
	if expr == nil {
		return next, nil
	}
	toks, err := tokenize(*expr)
	if err != nil {
		return nil, err
	}
	// values are resolved against the pre-update item
	e := &evaluator{toks: toks, names: names, values: values, item: current}
	if e.item == nil {
		e.item = map[string]types.AttributeValue{}
	}

	for e.peek() != nil {
		kw, err := e.next()
		if err != nil {
			return nil, err
		}
		switch strings.ToUpper(kw.text) {
		case "SET":
			for {
				p, err := e.next()
				if err != nil {
					return nil, err
				}
				name, err := e.attrName(p.text)
				if err != nil {
					return nil, err
				}
				if err := e.expect(tokOp, "="); err != nil {
					return nil, err
				}
				v, err := e.setValue()
				if err != nil {
					return nil, err
				}
				next[name] = v
				if t := e.peek(); t != nil && t.kind == tokComma {
					e.pos++
					continue
				}
				break
			}
		case "ADD":
			for {
				p, err := e.next()
				if err != nil {
					return nil, err
				}
				name, err := e.attrName(p.text)
				if err != nil {
					return nil, err
				}
				vt, err := e.next()
				if err != nil {
					return nil, err
				}
				delta, _, err := e.operand(vt.text)
				if err != nil {
					return nil, err
				}
				cur, ok := e.item[name]
				if !ok {
					next[name] = delta
				} else {
					sum, err := arith(cur, delta, "+")
					if err != nil {
						return nil, err
					}
					next[name] = sum
				}
				if t := e.peek(); t != nil && t.kind == tokComma {
					e.pos++
					continue
				}
				break
			}
		case "REMOVE":
			for {
				p, err := e.next()
				if err != nil {
					return nil, err
				}
				name, err := e.attrName(p.text)
				if err != nil {
					return nil, err
				}
				delete(next, name)
				if t := e.peek(); t != nil && t.kind == tokComma {
					e.pos++
					continue
				}
				break
			}
		default:
			return nil, fmt.Errorf("dynamofake: unsupported update clause %q", kw.text)
		}
	}
	return next, nil
}

func (e *evaluator) setValue() (types.AttributeValue, error) {
	left, err := e.setOperand()
	if err != nil {
		return nil, err
	}
	if t := e.peek(); t != nil && t.kind == tokOp && (t.text == "+" || t.text == "-") {
		e.pos++
		right, err := e.setOperand()
		if err != nil {
			return nil, err
		}
		return arith(left, right, t.text)
	}
	return left, nil
}

func (e *evaluator) setOperand() (types.AttributeValue, error) {
	t, err := e.next()
	if err != nil {
		return nil, err
	}
	if t.kind != tokIdent {
		return nil, fmt.Errorf("dynamofake: unexpected %q in SET", t.text)
	}
	if nt := e.peek(); nt != nil && nt.kind == tokLParen {
		switch t.text {
		case "if_not_exists":
			e.pos++
			p, err := e.next()
			if err != nil {
				return nil, err
			}
			if err := e.expect(tokComma, ","); err != nil {
				return nil, err
			}
			fallback, err := e.setOperand()
			if err != nil {
				return nil, err
			}
			if err := e.expect(tokRParen, ")"); err != nil {
				return nil, err
			}
			v, ok, err := e.operand(p.text)
			if err != nil {
				return nil, err
			}
			if ok {
				return v, nil
			}
			return fallback, nil
		case "list_append":
			e.pos++
			a, err := e.setOperand()
			if err != nil {
				return nil, err
			}
			if err := e.expect(tokComma, ","); err != nil {
				return nil, err
			}
			b, err := e.setOperand()
			if err != nil {
				return nil, err
			}
			if err := e.expect(tokRParen, ")"); err != nil {
				return nil, err
			}
			al, aok := a.(*types.AttributeValueMemberL)
			bl, bok := b.(*types.AttributeValueMemberL)
			if !aok || !bok {
				return nil, fmt.Errorf("dynamofake: list_append needs two lists")
			}
			joined := make([]types.AttributeValue, 0, len(al.Value)+len(bl.Value))
			joined = append(joined, al.Value...)
			joined = append(joined, bl.Value...)
			return &types.AttributeValueMemberL{Value: joined}, nil
		default:
			return nil, fmt.Errorf("dynamofake: unsupported function %q", t.text)
		}
	}
	v, ok, err := e.operand(t.text)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("dynamofake: the provided expression refers to an attribute that does not exist in the item: %s", t.text)
	}
	return v, nil
}

func arith(a, b types.AttributeValue, op string) (types.AttributeValue, error) {
	an, aok := a.(*types.AttributeValueMemberN)
	bn, bok := b.(*types.AttributeValueMemberN)
	if !aok || !bok {
		return nil, fmt.Errorf("dynamofake: arithmetic on non-numeric operands")
	}
	x, err := strconv.ParseFloat(an.Value, 64)
	if err != nil {
		return nil, err
	}
	y, err := strconv.ParseFloat(bn.Value, 64)
	if err != nil {
		return nil, err
	}
	r := x + y
	if op == "-" {
		r = x - y
	}
	return &types.AttributeValueMemberN{Value: strconv.FormatFloat(r, 'f', -1, 64)}, nil
}
