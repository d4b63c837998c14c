package encryption

import (
	"encoding"
	"encoding/json"
	"fmt"
	"math"
	"math/big"
	"reflect"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ruteri/encrypted-name-registry/interfaces"
)

// maxSequenceBytes is how many elements of a byte-like result are kept.
const maxSequenceBytes = 32

// Shape is the recognized form of an encryption result.
type Shape int

const (
	// ShapeHandles is a structure with a non-empty handles collection.
	ShapeHandles Shape = iota
	// ShapeSequence is an ordered byte-like sequence.
	ShapeSequence
	// ShapeKeyed is a structure with a conventional ciphertext field.
	ShapeKeyed
	// ShapeIndexed is a structure keyed by integer strings.
	ShapeIndexed
	// ShapeScalar is anything else, taken as the ciphertext itself.
	ShapeScalar
)

func (s Shape) String() string {
	switch s {
	case ShapeHandles:
		return "handles"
	case ShapeSequence:
		return "sequence"
	case ShapeKeyed:
		return "keyed"
	case ShapeIndexed:
		return "indexed"
	default:
		return "scalar"
	}
}

// ciphertextFields are searched in order on keyed results.
var ciphertextFields = []string{"handle", "encrypted", "result", "data", "value"}

// Ciphertexts is the typed result a native provider may return directly.
type Ciphertexts struct {
	Handles    [][]byte
	InputProof []byte
}

// Normalize converts an encryption result into canonical bytes. The result
// is matched against the recognized shapes in fixed order:
//
//  1. a non-empty "handles" collection: first handle, proof from
//     "inputProof" or "proof"
//  2. an ordered sequence: its first 32 elements as bytes, no proof
//  3. a structure with one of handle, encrypted, result, data or value:
//     that field, proof from "proof" or "inputProof"
//  4. a structure keyed only by integer strings: as in 2
//  5. anything else: the value itself, no proof
//
// It never returns a provider-native value. Results without a ciphertext
// fail with ErrEncryptionResultEmpty; values that have no byte
// representation fail with ErrEncryptionResultUnusable.
func Normalize(result any) (interfaces.EncryptedClaim, Shape, error) {
	shape, ciphertext, proof, err := extract(result)
	if err != nil {
		return interfaces.EncryptedClaim{}, shape, err
	}

	ct, err := canonical(ciphertext)
	if err != nil {
		return interfaces.EncryptedClaim{}, shape, err
	}
	if len(ct) == 0 {
		return interfaces.EncryptedClaim{}, shape, interfaces.ErrEncryptionResultEmpty
	}

	var pr []byte
	if proof != nil {
		if pr, err = canonical(proof); err != nil {
			return interfaces.EncryptedClaim{}, shape, fmt.Errorf("proof: %w", err)
		}
	}
	if pr == nil {
		pr = []byte{}
	}
	return interfaces.EncryptedClaim{Ciphertext: ct, Proof: pr}, shape, nil
}

// Classify reports which shape Normalize would treat result as.
func Classify(result any) Shape {
	shape, _, _, _ := extract(result)
	return shape
}

func extract(result any) (Shape, any, any, error) {
	if result == nil {
		return ShapeScalar, nil, nil, interfaces.ErrEncryptionResultEmpty
	}

	switch r := result.(type) {
	case Ciphertexts:
		return extractTyped(&r)
	case *Ciphertexts:
		return extractTyped(r)
	}

	keyed, isKeyed := asKeyed(result)
	if isKeyed {
		if handles, ok := asSequence(keyed["handles"]); ok && len(handles) > 0 {
			return ShapeHandles, handles[0], firstPresent(keyed, "inputProof", "proof"), nil
		}
	}

	if seq, ok := asSequence(result); ok {
		ct, err := sequenceBytes(seq, maxSequenceBytes)
		return ShapeSequence, ct, nil, err
	}

	if !isKeyed {
		return ShapeScalar, result, nil, nil
	}

	for _, field := range ciphertextFields {
		if v, ok := keyed[field]; ok {
			return ShapeKeyed, v, firstPresent(keyed, "proof", "inputProof"), nil
		}
	}

	if seq, ok := indexedSequence(keyed); ok {
		ct, err := sequenceBytes(seq, maxSequenceBytes)
		return ShapeIndexed, ct, nil, err
	}

	return ShapeScalar, result, nil, nil
}

func extractTyped(c *Ciphertexts) (Shape, any, any, error) {
	if c == nil || len(c.Handles) == 0 {
		return ShapeHandles, nil, nil, interfaces.ErrEncryptionResultEmpty
	}
	return ShapeHandles, c.Handles[0], c.InputProof, nil
}

// firstPresent returns the first field that carries a value.
func firstPresent(keyed map[string]any, fields ...string) any {
	for _, f := range fields {
		if v, ok := keyed[f]; ok && v != nil && !isEmptyString(v) {
			return v
		}
	}
	return nil
}

func isEmptyString(v any) bool {
	s, ok := v.(string)
	return ok && s == ""
}

// asKeyed returns result as a string-keyed map.
func asKeyed(v any) (map[string]any, bool) {
	if m, ok := v.(map[string]any); ok {
		return m, true
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Map || rv.Type().Key().Kind() != reflect.String {
		return nil, false
	}
	out := make(map[string]any, rv.Len())
	iter := rv.MapRange()
	for iter.Next() {
		out[iter.Key().String()] = iter.Value().Interface()
	}
	return out, true
}

// asSequence returns v as an ordered list. Strings are not sequences.
func asSequence(v any) ([]any, bool) {
	switch s := v.(type) {
	case nil, string:
		return nil, false
	case []any:
		return s, true
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}

// indexedSequence turns an array-like structure into a list. Missing
// indices read as zero.
func indexedSequence(keyed map[string]any) ([]any, bool) {
	if len(keyed) == 0 {
		return nil, false
	}
	for key := range keyed {
		if i, err := strconv.Atoi(key); err != nil || i < 0 {
			return nil, false
		}
	}
	out := make([]any, len(keyed))
	for i := range out {
		out[i] = keyed[strconv.Itoa(i)]
	}
	return out, true
}

// sequenceBytes encodes up to limit elements as bytes. Nil elements are zero.
func sequenceBytes(seq []any, limit int) ([]byte, error) {
	if limit > 0 && len(seq) > limit {
		seq = seq[:limit]
	}
	out := make([]byte, len(seq))
	for i, el := range seq {
		if el == nil {
			continue
		}
		n, ok := asInteger(el)
		if !ok || n.Sign() < 0 || n.Cmp(big.NewInt(math.MaxUint8)) > 0 {
			return nil, fmt.Errorf("%w: element %d (%v) is not a byte", interfaces.ErrEncryptionResultUnusable, i, el)
		}
		out[i] = byte(n.Uint64())
	}
	return out, nil
}

// canonical converts a ciphertext or proof value into bytes.
func canonical(v any) ([]byte, error) {
	switch val := v.(type) {
	case nil:
		return nil, nil
	case []byte:
		return append([]byte{}, val...), nil
	case hexutil.Bytes:
		return append([]byte{}, val...), nil
	case string:
		return parseString(val)
	case json.Number:
		return parseString(val.String())
	case *big.Int:
		return intBytes(val)
	case big.Int:
		return intBytes(&val)
	case bool:
		return nil, fmt.Errorf("%w: boolean value", interfaces.ErrEncryptionResultUnusable)
	}

	if n, ok := asInteger(v); ok {
		return intBytes(n)
	}
	if seq, ok := asSequence(v); ok {
		return sequenceBytes(seq, 0)
	}
	if keyed, ok := asKeyed(v); ok {
		if seq, ok := indexedSequence(keyed); ok {
			return sequenceBytes(seq, 0)
		}
	}
	if tm, ok := v.(encoding.TextMarshaler); ok {
		text, err := tm.MarshalText()
		if err != nil {
			return nil, fmt.Errorf("%w: %s", interfaces.ErrEncryptionResultUnusable, err.Error())
		}
		return parseString(string(text))
	}
	if s, ok := v.(fmt.Stringer); ok {
		return parseString(s.String())
	}
	return nil, fmt.Errorf("%w: %T has no canonical representation", interfaces.ErrEncryptionResultUnusable, v)
}

func parseString(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		digits := s[2:]
		if len(digits)%2 == 1 {
			digits = "0" + digits
		}
		b, err := hexutil.Decode("0x" + digits)
		if err != nil {
			return nil, fmt.Errorf("%w: %q is not hex", interfaces.ErrEncryptionResultUnusable, s)
		}
		return b, nil
	}
	n, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("%w: %q is neither hex nor decimal", interfaces.ErrEncryptionResultUnusable, s)
	}
	return intBytes(n)
}

func intBytes(n *big.Int) ([]byte, error) {
	if n == nil {
		return nil, nil
	}
	if n.Sign() < 0 {
		return nil, fmt.Errorf("%w: negative value %s", interfaces.ErrEncryptionResultUnusable, n)
	}
	if n.Sign() == 0 {
		return []byte{0}, nil
	}
	return n.Bytes(), nil
}

// asInteger converts numeric values without losing precision.
func asInteger(v any) (*big.Int, bool) {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return big.NewInt(rv.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return new(big.Int).SetUint64(rv.Uint()), true
	case reflect.Float32, reflect.Float64:
		f := rv.Float()
		if f != math.Trunc(f) || math.IsInf(f, 0) {
			return nil, false
		}
		n, _ := big.NewFloat(f).Int(nil)
		return n, true
	}
	switch val := v.(type) {
	case json.Number:
		n, ok := new(big.Int).SetString(val.String(), 10)
		return n, ok
	case *big.Int:
		return val, val != nil
	}
	return nil, false
}
