package reader

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"anvil/internal/ir"
)

func TestParseRoundTrip(t *testing.T) {
	src := `function %dispatch(i32, i64 sext) -> i32 fast {
    ss0 = explicit_slot 16
    gv0 = symbol %stack_limit
    jt0 = jump_table ebb1, ebb2
    sig0 = (i32) -> i32 fast
    fn0 = %helper sig0

ebb0(v0: i32, v1: i64):
    stack_check gv0
    v2 = iconst.i32 7
    v3 = iadd v0, v2
    v4 = icmp_imm ult v3, 2
    brnz v4, ebb1
    br_table v3, ebb2, jt0

ebb1:
    v5 = call fn0(v3)
    v6 = stack_addr.i32 ss0+8
    v7 = load.i32 notrap aligned v6+4
    store notrap aligned v7, v6-4
    trapnz v7, user(3)
    jump ebb2

ebb2:
    v8 = select v4, v3, v2
    return v8
}
`
	fn, err := ParseFunction("test.avl", src)
	require.NoError(t, err)
	assert.Equal(t, "dispatch", fn.Name)
	assert.Equal(t, src, ir.Print(fn))
}

func TestParseMultipleFunctions(t *testing.T) {
	src := `function %one() fast {
ebb0:
    return
}
function %two(i32) -> i32 fast {
ebb0(v0: i32):
    return v0
}
`
	fns, err := Parse("test.avl", src)
	require.NoError(t, err)
	require.Len(t, fns, 2)
	assert.Equal(t, "one", fns[0].Name)
	assert.Equal(t, "two", fns[1].Name)
}

func TestParseErrors(t *testing.T) {
	cases := []struct {
		name string
		src  string
	}{
		{"bad opcode", "function %f() fast {\nebb0:\n    frobnicate\n}\n"},
		{"undefined value", "function %f() fast {\nebb0:\n    return v9\n}\n"},
		{"bad type", "function %f(i33) fast {\nebb0:\n    return\n}\n"},
		{"truncated", "function %f() fast {\nebb0:\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse("test.avl", tc.src)
			assert.Error(t, err)
		})
	}
}

func TestParseFloatConstants(t *testing.T) {
	src := `function %f() -> f32 fast {
ebb0:
    v0 = f32const 0x3f800000
    return v0
}
`
	fn, err := ParseFunction("test.avl", src)
	require.NoError(t, err)
	assert.Equal(t, src, ir.Print(fn))
}

func TestParseTrapCodes(t *testing.T) {
	src := `function %traps(i32) fast {
ebb0(v0: i32):
    trapz v0, int_divz
    trap stk_ovf
}
`
	fn, err := ParseFunction("test.avl", src)
	require.NoError(t, err)
	assert.Equal(t, src, ir.Print(fn))
}
