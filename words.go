package holyhook

import (
	"fmt"
	"math"
	"reflect"
)

// maxWords is the number of 32 bit stack words a cdecl foreign call carries. Unused words are zero.
const maxWords = 8

type words [maxWords]uint32

// wordsOf is the stack footprint of one parameter type, zero for types that cannot cross.
func wordsOf(t reflect.Type) int {
	switch t.Kind() {
	case reflect.Bool, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int,
		reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint, reflect.Uintptr, reflect.Float32:
		return 1
	case reflect.Int64, reflect.Uint64, reflect.Float64:
		return 2
	default:
		return 0
	}
}

// cdeclSignature checks that t can be called as, or called from, a 32 bit cdecl function. Results come back in
// eax or edx:eax, so float results are rejected.
func cdeclSignature(t reflect.Type) error {
	if t.Kind() != reflect.Func {
		return fmt.Errorf("%s is not a func", t)
	}
	if t.IsVariadic() {
		return fmt.Errorf("%s is variadic", t)
	}
	n := 0
	for i := 0; i < t.NumIn(); i++ {
		w := wordsOf(t.In(i))
		if w == 0 {
			return fmt.Errorf("%s: parameter %d of kind %s", t, i, t.In(i).Kind())
		}
		n += w
	}
	if n > maxWords {
		return fmt.Errorf("%s needs %d stack words, at most %d", t, n, maxWords)
	}
	switch t.NumOut() {
	case 0:
	case 1:
		if r := t.Out(0); wordsOf(r) == 0 || r.Kind() == reflect.Float32 || r.Kind() == reflect.Float64 {
			return fmt.Errorf("%s: result of kind %s", t, r.Kind())
		}
	default:
		return fmt.Errorf("%s has %d results", t, t.NumOut())
	}
	return nil
}

// packArgs lays the arguments out as stack words, 64 bit values low word first.
func packArgs(args []reflect.Value) (w words) {
	i := 0
	for _, v := range args {
		var x uint64
		switch v.Kind() {
		case reflect.Bool:
			if v.Bool() {
				x = 1
			}
		case reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int, reflect.Int64:
			x = uint64(v.Int())
		case reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint, reflect.Uintptr, reflect.Uint64:
			x = v.Uint()
		case reflect.Float32:
			x = uint64(math.Float32bits(float32(v.Float())))
		case reflect.Float64:
			x = math.Float64bits(v.Float())
		}
		w[i] = uint32(x)
		if wordsOf(v.Type()) == 2 {
			w[i+1] = uint32(x >> 32)
			i++
		}
		i++
	}
	return
}

// unpackArgs rebuilds the parameters of t from stack words.
func unpackArgs(t reflect.Type, w words) []reflect.Value {
	args := make([]reflect.Value, t.NumIn())
	i := 0
	for n := range args {
		p := t.In(n)
		x := uint64(w[i])
		if wordsOf(p) == 2 {
			x |= uint64(w[i+1]) << 32
			i++
		}
		i++
		args[n] = fromBits(p, x)
	}
	return args
}

// packResult is the eax or edx:eax value of a call result.
func packResult(t reflect.Type, out []reflect.Value) uint64 {
	if t.NumOut() == 0 {
		return 0
	}
	return packArgs(out[:1]).result()
}

func (w words) result() uint64 {
	return uint64(w[0]) | uint64(w[1])<<32
}

// unpackResult converts eax or edx:eax to the result of t.
func unpackResult(t reflect.Type, r uint64) []reflect.Value {
	if t.NumOut() == 0 {
		return nil
	}
	o := t.Out(0)
	if wordsOf(o) == 1 {
		r = uint64(uint32(r))
	}
	return []reflect.Value{fromBits(o, r)}
}

func fromBits(t reflect.Type, x uint64) reflect.Value {
	v := reflect.New(t).Elem()
	switch t.Kind() {
	case reflect.Bool:
		v.SetBool(uint32(x) != 0)
	case reflect.Int8:
		v.SetInt(int64(int8(x)))
	case reflect.Int16:
		v.SetInt(int64(int16(x)))
	case reflect.Int32, reflect.Int:
		v.SetInt(int64(int32(x)))
	case reflect.Int64:
		v.SetInt(int64(x))
	case reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint, reflect.Uintptr:
		v.SetUint(uint64(uint32(x)))
	case reflect.Uint64:
		v.SetUint(x)
	case reflect.Float32:
		v.SetFloat(float64(math.Float32frombits(uint32(x))))
	case reflect.Float64:
		v.SetFloat(math.Float64frombits(x))
	}
	return v
}
