package bridge

import (
	"errors"
	"testing"

	"github.com/ZenLiuCN/fn"
)

func TestRecorder(t *testing.T) {
	r := NewRecorder()
	fn.Panic(r.PublishFunction("voicechat", "GetVoiceCount", func(Args) ([]any, error) { return []any{int64(3)}, nil }))
	fn.Panic(r.PublishConstant("physenv", "IVP_NoSkip", 0))
	if res := fn.Panic1(r.Call("voicechat", "GetVoiceCount")); res[0] != int64(3) {
		t.Fatal(res)
	}
	if tables := r.Tables(); len(tables) != 2 || tables[0] != "physenv" {
		t.Fatal(tables)
	}
	fn.Panic(r.Remove("physenv", "IVP_NoSkip"))
	if _, ok := r.Value("physenv", "IVP_NoSkip"); ok || len(r.Tables()) != 1 {
		t.Fatal(r)
	}
	r.OnHook("e", func(args ...any) (any, error) { return len(args), nil })
	if v := fn.Panic1(r.RunHook("e", 1, 2)); v != 2 {
		t.Fatal(v)
	}
	if v := fn.Panic1(r.RunHook("other")); v != nil || len(r.Runs()) != 2 {
		t.Fatal(v)
	}
}

func TestArgs(t *testing.T) {
	a := Args{"x", int64(2), 2.5, nil, false, 3.0}
	if s, err := a.String(1); err != nil || s != "2" {
		t.Fatal(s, err)
	}
	if _, err := a.Int(2); !errors.Is(err, ErrArgument) {
		t.Fatal(err)
	}
	if v, err := a.Int(5); err != nil || v != 3 {
		t.Fatal(v, err)
	}
	if v, err := a.Number(1); err != nil || v != 2 {
		t.Fatal(v, err)
	}
	if _, err := a.String(10); !errors.Is(err, ErrArgument) {
		t.Fatal(err)
	}
	if a.Bool(3) || a.Bool(4) || !a.Bool(0) || !Truthy(0) {
		t.Fatal("truthiness")
	}
	if _, err := a.Callable(0); err == nil {
		t.Fatal("string is not callable")
	}
}
